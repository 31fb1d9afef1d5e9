package service

import (
	"context"
	"fmt"

	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
)

// ensureDay создаёт маркер и нулевой счётчик, если их нет, и продлевает TTL
// структур дня. Существующий счётчик не сбрасывается.
func ensureDay(ctx context.Context, store kvstore.Store, dc daykey.Context, keys daykey.Keys) error {
	err := store.Pipeline(ctx, func(b kvstore.Batch) {
		b.SetIfAbsent(keys.Marker, dc.Day, dc.TTL)
		b.SetIfAbsent(keys.Counter, "0", dc.TTL)
		refreshBatch(b, dc, keys)
	})
	if err != nil {
		return fmt.Errorf("ensure day %s: %w", dc.Day, err)
	}
	return nil
}

// refreshDay только продлевает TTL; отсутствующие ключи не создаются.
func refreshDay(ctx context.Context, store kvstore.Store, dc daykey.Context, keys daykey.Keys) error {
	if err := store.Pipeline(ctx, func(b kvstore.Batch) { refreshBatch(b, dc, keys) }); err != nil {
		return fmt.Errorf("refresh day %s: %w", dc.Day, err)
	}
	return nil
}

func refreshBatch(b kvstore.Batch, dc daykey.Context, keys daykey.Keys) {
	b.Expire(keys.Marker, dc.TTL)
	b.Expire(keys.Counter, dc.TTL)
	b.Expire(keys.Queue, dc.TTL)
	b.Expire(keys.Current, dc.TTL)
	b.Expire(keys.Logs, dc.TTL)
}
