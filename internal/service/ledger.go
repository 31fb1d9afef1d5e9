package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/errs"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/metrics"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"go.uber.org/zap"
)

const ClosedMessage = "service closed, come back tomorrow"

// Ledger владеет записями тикетов и счётчиком номеров.
type Ledger struct {
	store    kvstore.Store
	resolver *daykey.Resolver
	activity *ActivityLog
	log      *zap.Logger
}

func NewLedger(store kvstore.Store, resolver *daykey.Resolver, activity *ActivityLog, log *zap.Logger) *Ledger {
	return &Ledger{store: store, resolver: resolver, activity: activity, log: log}
}

// Issue выдаёт следующий тикет открытого дня и ставит его в очередь.
// Если день не открыт — возвращает признак closed и ничего не меняет.
//
// Единственная точка сериализации — INCR счётчика: номера уникальны и идут
// подряд при конкурентных вызовах. Запись пишется до RPUSH в том же пакете,
// у номера в очереди всегда есть запись.
// WaitingBefore читается до INCR и носит справочный характер.
func (l *Ledger) Issue(ctx context.Context, serviceType string) (model.TakeResult, error) {
	dc := l.resolver.Resolve()
	keys := l.resolver.KeysFor(dc.Day)

	open, err := l.store.Exists(ctx, keys.Marker)
	if err != nil {
		return model.TakeResult{}, fmt.Errorf("issue: %w", err)
	}
	if !open {
		metrics.TicketsRefused.Inc()
		return model.TakeResult{Closed: true, Message: ClosedMessage}, nil
	}
	if err := ensureDay(ctx, l.store, dc, keys); err != nil {
		return model.TakeResult{}, fmt.Errorf("issue: %w", err)
	}

	before, err := l.store.Len(ctx, keys.Queue)
	if err != nil {
		return model.TakeResult{}, fmt.Errorf("issue: %w", err)
	}
	number, err := l.store.Incr(ctx, keys.Counter)
	if err != nil {
		return model.TakeResult{}, fmt.Errorf("issue: %w", err)
	}

	ticket := model.NewTicket(number, dc.Now, serviceType)
	recordKey := keys.Ticket(number)
	err = l.store.Pipeline(ctx, func(b kvstore.Batch) {
		b.HashSet(recordKey, ticket.Fields())
		b.Expire(recordKey, dc.TTL)
		b.PushTail(keys.Queue, strconv.FormatInt(number, 10))
		b.Expire(keys.Queue, dc.TTL)
	})
	if err != nil {
		return model.TakeResult{}, fmt.Errorf("issue ticket %d: %w", number, err)
	}
	if err := l.activity.Append(ctx, dc, keys, fmt.Sprintf("take_ticket:%d", number)); err != nil {
		return model.TakeResult{}, err
	}

	metrics.TicketsIssued.Inc()
	l.log.Info("ticket issued",
		zap.String("day", dc.Day),
		zap.Int64("ticket", number),
		zap.Int64("waiting_before", before),
		zap.String("service_type", serviceType),
	)
	return model.TakeResult{
		Day:           dc.Day,
		Ticket:        &ticket,
		WaitingBefore: max(before, 0),
	}, nil
}

// Get читает тикет текущего дня.
func (l *Ledger) Get(ctx context.Context, number int64) (*model.Ticket, error) {
	keys := l.resolver.KeysFor(l.resolver.Resolve().Day)
	return l.get(ctx, keys, number)
}

func (l *Ledger) get(ctx context.Context, keys daykey.Keys, number int64) (*model.Ticket, error) {
	fields, err := l.store.HashGetAll(ctx, keys.Ticket(number))
	if err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", number, err)
	}
	if len(fields) == 0 {
		return nil, errs.ErrTicketNotFound
	}
	t, _ := model.TicketFromFields(number, fields)
	return &t, nil
}

// setStatus перезаписывает статус тикета и продлевает TTL записи.
// Порядок переходов контролирует Dispatcher.
func (l *Ledger) setStatus(ctx context.Context, dc daykey.Context, keys daykey.Keys, number int64, status model.TicketStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", errs.ErrInvalidStatus, status)
	}
	if err := l.store.Pipeline(ctx, func(b kvstore.Batch) { stageStatus(b, dc, keys, number, status) }); err != nil {
		return fmt.Errorf("set status of ticket %d: %w", number, err)
	}
	return nil
}

func stageStatus(b kvstore.Batch, dc daykey.Context, keys daykey.Keys, number int64, status model.TicketStatus) {
	key := keys.Ticket(number)
	b.HashSet(key, map[string]string{model.FieldStatus: string(status)})
	b.Expire(key, dc.TTL)
}
