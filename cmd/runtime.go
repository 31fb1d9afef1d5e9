package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/psds-microservice/ticket-queue/internal/application"
	"github.com/psds-microservice/ticket-queue/internal/config"
	"github.com/psds-microservice/ticket-queue/internal/logger"
	"github.com/psds-microservice/ticket-queue/internal/service"
	"go.uber.org/zap"
)

const commandTimeout = 30 * time.Second

func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

// withService выполняет fn поверх настроенного хранилища и закрывает его после.
func withService(fn func(ctx context.Context, cfg *config.Config, svc *service.TicketService, log *zap.Logger) error) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	store, err := application.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(ctx, cfg, application.NewTicketService(cfg, store, log), log)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
