package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/psds-microservice/ticket-queue/internal/application"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API",
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.NewAPI(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := app.Run(ctx); err != nil {
		log.Error("api stopped", zap.Error(err))
		return err
	}
	log.Info("api stopped")
	return nil
}
