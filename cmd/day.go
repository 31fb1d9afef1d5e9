package cmd

import (
	"context"

	"github.com/psds-microservice/ticket-queue/internal/config"
	"github.com/psds-microservice/ticket-queue/internal/kafka"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"github.com/psds-microservice/ticket-queue/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dayCmd = &cobra.Command{
	Use:   "day",
	Short: "Open or close the current queue day",
}

var dayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Open today's queue (no-op when already open)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDay(cmd, kafka.EventDayStarted, (*service.TicketService).StartDay)
	},
}

var dayEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Close today's queue and delete all of its keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDay(cmd, kafka.EventDayEnded, (*service.TicketService).EndDay)
	},
}

func init() {
	dayCmd.AddCommand(dayStartCmd)
	dayCmd.AddCommand(dayEndCmd)
}

func runDay(cmd *cobra.Command, event string, op func(*service.TicketService, context.Context) (model.DayResult, error)) error {
	return withService(func(ctx context.Context, cfg *config.Config, svc *service.TicketService, log *zap.Logger) error {
		res, err := op(svc, ctx)
		if err != nil {
			return err
		}
		producer := kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.TicketTopic, log)
		producer.ProduceEvent(ctx, event, map[string]interface{}{"day": res.Day})
		if err := producer.Close(); err != nil {
			log.Warn("kafka close", zap.Error(err))
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}
