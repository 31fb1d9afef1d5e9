package cmd

import (
	"context"

	"github.com/psds-microservice/ticket-queue/internal/config"
	"github.com/psds-microservice/ticket-queue/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the queue status of the current day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, _ *config.Config, svc *service.TicketService, _ *zap.Logger) error {
			st, err := svc.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		})
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the dashboard snapshot of the current day",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, _ *config.Config, svc *service.TicketService, _ *zap.Logger) error {
			snap, err := svc.Snapshot(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		})
	},
}
