package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/model"
)

const (
	logRetained = 50
	logSurfaced = 20
)

// ActivityLog — ограниченный журнал дня, новые записи первыми.
type ActivityLog struct {
	store kvstore.Store
}

func NewActivityLog(store kvstore.Store) *ActivityLog {
	return &ActivityLog{store: store}
}

// Append добавляет запись с меткой времени в начало, хранит 50 последних.
func (a *ActivityLog) Append(ctx context.Context, dc daykey.Context, keys daykey.Keys, message string) error {
	entry := dc.Now.UTC().Format(time.RFC3339Nano) + "|" + message
	err := a.store.Pipeline(ctx, func(b kvstore.Batch) {
		b.PushHead(keys.Logs, entry)
		b.Trim(keys.Logs, 0, logRetained-1)
		b.Expire(keys.Logs, dc.TTL)
	})
	if err != nil {
		return fmt.Errorf("append log %q: %w", message, err)
	}
	return nil
}

// Recent возвращает до limit записей, новые первыми.
func (a *ActivityLog) Recent(ctx context.Context, keys daykey.Keys, limit int64) ([]model.LogEntry, error) {
	raw, err := a.store.Range(ctx, keys.Logs, 0, limit-1)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	out := make([]model.LogEntry, 0, len(raw))
	for _, line := range raw {
		out = append(out, parseLogEntry(line))
	}
	return out, nil
}

func parseLogEntry(line string) model.LogEntry {
	at, msg, ok := strings.Cut(line, "|")
	if !ok {
		return model.LogEntry{Message: line}
	}
	return model.LogEntry{At: at, Message: msg}
}
