package service

import (
	"context"
	"fmt"

	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/metrics"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"go.uber.org/zap"
)

const scanPageSize = 200

// Lifecycle открывает и закрывает день очереди.
type Lifecycle struct {
	store    kvstore.Store
	resolver *daykey.Resolver
	activity *ActivityLog
	log      *zap.Logger
}

func NewLifecycle(store kvstore.Store, resolver *daykey.Resolver, activity *ActivityLog, log *zap.Logger) *Lifecycle {
	return &Lifecycle{store: store, resolver: resolver, activity: activity, log: log}
}

// StartDay идемпотентен: счётчик и очередь открытого дня не сбрасываются.
func (l *Lifecycle) StartDay(ctx context.Context) (model.DayResult, error) {
	dc := l.resolver.Resolve()
	keys := l.resolver.KeysFor(dc.Day)
	if err := ensureDay(ctx, l.store, dc, keys); err != nil {
		return model.DayResult{}, fmt.Errorf("start day: %w", err)
	}
	if err := l.activity.Append(ctx, dc, keys, "start_day"); err != nil {
		return model.DayResult{}, fmt.Errorf("start day: %w", err)
	}
	metrics.DayTransitions.WithLabelValues("start").Inc()
	l.log.Info("day started", zap.String("day", dc.Day), zap.Int64("ttl_seconds", dc.TTLSeconds()))
	return model.DayResult{Day: dc.Day, Open: true}, nil
}

// EndDay удаляет все ключи дня; тикеты ищутся scan по префиксу и удаляются
// постранично. Без открытого дня вызов безопасен.
func (l *Lifecycle) EndDay(ctx context.Context) (model.DayResult, error) {
	dc := l.resolver.Resolve()
	keys := l.resolver.KeysFor(dc.Day)

	deleted := 0
	var cursor uint64
	for {
		page, next, err := l.store.Scan(ctx, keys.TicketPattern(), cursor, scanPageSize)
		if err != nil {
			return model.DayResult{}, fmt.Errorf("end day: %w", err)
		}
		if err := l.store.Delete(ctx, page...); err != nil {
			return model.DayResult{}, fmt.Errorf("end day: %w", err)
		}
		deleted += len(page)
		if next == 0 {
			break
		}
		cursor = next
	}
	if err := l.store.Delete(ctx, keys.Queue, keys.Counter, keys.Current, keys.Marker, keys.Logs); err != nil {
		return model.DayResult{}, fmt.Errorf("end day: %w", err)
	}

	metrics.DayTransitions.WithLabelValues("end").Inc()
	l.log.Info("day ended", zap.String("day", dc.Day), zap.Int("ticket_records_deleted", deleted))
	return model.DayResult{Day: dc.Day, Ended: true, Open: false}, nil
}
