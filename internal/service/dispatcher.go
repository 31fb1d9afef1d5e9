package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/metrics"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"go.uber.org/zap"
)

const (
	NoWaitingMessage    = "no ticket waiting"
	NoInProgressMessage = "no ticket in progress"
)

// Dispatcher владеет FIFO-очередью ожидания и слотом текущего тикета.
// Переходы: waiting -> in_progress (call-next) -> completed (finish-current).
type Dispatcher struct {
	store    kvstore.Store
	resolver *daykey.Resolver
	ledger   *Ledger
	activity *ActivityLog
	log      *zap.Logger
}

func NewDispatcher(store kvstore.Store, resolver *daykey.Resolver, ledger *Ledger, activity *ActivityLog, log *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, resolver: resolver, ledger: ledger, activity: activity, log: log}
}

// Take делегирует выдачу в Ledger.
func (d *Dispatcher) Take(ctx context.Context, serviceType string) (model.TakeResult, error) {
	return d.ledger.Issue(ctx, serviceType)
}

// CallNext снимает голову очереди и делает её текущим тикетом. Снятие атомарно,
// конкурентные вызовы не получат один номер. Незавершённый текущий
// тикет перезаписывается с предупреждением в лог.
func (d *Dispatcher) CallNext(ctx context.Context) (model.CallNextResult, error) {
	dc := d.resolver.Resolve()
	keys := d.resolver.KeysFor(dc.Day)
	if err := refreshDay(ctx, d.store, dc, keys); err != nil {
		return model.CallNextResult{}, fmt.Errorf("call next: %w", err)
	}

	raw, ok, err := d.store.PopHead(ctx, keys.Queue)
	if err != nil {
		return model.CallNextResult{}, fmt.Errorf("call next: %w", err)
	}
	if !ok {
		return model.CallNextResult{Message: NoWaitingMessage}, nil
	}
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return model.CallNextResult{}, fmt.Errorf("call next: malformed queue entry %q", raw)
	}

	prev, hadPrev, err := d.store.Get(ctx, keys.Current)
	if err != nil {
		return model.CallNextResult{}, fmt.Errorf("call next: %w", err)
	}
	if hadPrev {
		metrics.CurrentOverwritten.Inc()
		d.log.Warn("current ticket replaced before it was finished",
			zap.String("day", dc.Day),
			zap.String("previous", prev),
			zap.Int64("ticket", number),
		)
	}

	err = d.store.Pipeline(ctx, func(b kvstore.Batch) {
		b.Set(keys.Current, raw, dc.TTL)
		stageStatus(b, dc, keys, number, model.TicketStatusInProgress)
	})
	if err != nil {
		return model.CallNextResult{}, fmt.Errorf("call next %d: %w", number, err)
	}
	if err := d.activity.Append(ctx, dc, keys, fmt.Sprintf("call_next:%d", number)); err != nil {
		return model.CallNextResult{}, err
	}

	waiting, err := d.store.Len(ctx, keys.Queue)
	if err != nil {
		return model.CallNextResult{}, fmt.Errorf("call next: %w", err)
	}
	metrics.TicketsCalled.Inc()
	d.log.Info("ticket called", zap.String("day", dc.Day), zap.Int64("ticket", number), zap.Int64("waiting", waiting))
	waiting = max(waiting, 0)
	return model.CallNextResult{Called: true, CurrentTicket: &number, WaitingTickets: &waiting}, nil
}

// FinishCurrent завершает текущий тикет и очищает слот. Слот забирается
// атомарным GETDEL: два конкурентных вызова не завершат один тикет дважды.
func (d *Dispatcher) FinishCurrent(ctx context.Context) (model.FinishResult, error) {
	dc := d.resolver.Resolve()
	keys := d.resolver.KeysFor(dc.Day)
	if err := refreshDay(ctx, d.store, dc, keys); err != nil {
		return model.FinishResult{}, fmt.Errorf("finish current: %w", err)
	}

	raw, ok, err := d.store.GetDelete(ctx, keys.Current)
	if err != nil {
		return model.FinishResult{}, fmt.Errorf("finish current: %w", err)
	}
	if !ok {
		return model.FinishResult{Message: NoInProgressMessage}, nil
	}
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return model.FinishResult{}, fmt.Errorf("finish current: malformed current ticket %q", raw)
	}

	if err := d.ledger.setStatus(ctx, dc, keys, number, model.TicketStatusCompleted); err != nil {
		// Слот уже очищен: тикет остаётся in_progress без текущего.
		d.log.Error("finished ticket left in_progress",
			zap.String("day", dc.Day),
			zap.Int64("ticket", number),
			zap.Error(err),
		)
		return model.FinishResult{}, fmt.Errorf("finish current: %w", err)
	}
	if err := d.activity.Append(ctx, dc, keys, fmt.Sprintf("finish_current:%d", number)); err != nil {
		return model.FinishResult{}, err
	}

	metrics.TicketsFinished.Inc()
	d.log.Info("ticket finished", zap.String("day", dc.Day), zap.Int64("ticket", number))
	return model.FinishResult{Finished: true, FinishedTicket: &number}, nil
}

// Status читает агрегаты без блокировок. Для закрытого дня — нулевые значения.
func (d *Dispatcher) Status(ctx context.Context) (model.Status, error) {
	dc := d.resolver.Resolve()
	return d.status(ctx, dc, d.resolver.KeysFor(dc.Day))
}

func (d *Dispatcher) status(ctx context.Context, dc daykey.Context, keys daykey.Keys) (model.Status, error) {
	st := model.Status{Day: dc.Day}
	open, err := d.store.Exists(ctx, keys.Marker)
	if err != nil {
		return model.Status{}, fmt.Errorf("status: %w", err)
	}
	if !open {
		return st, nil
	}
	st.Open = true

	if st.QueueLength, err = d.store.Len(ctx, keys.Queue); err != nil {
		return model.Status{}, fmt.Errorf("status: %w", err)
	}
	st.WaitingTickets = max(st.QueueLength, 0)

	current, ok, err := d.store.Get(ctx, keys.Current)
	if err != nil {
		return model.Status{}, fmt.Errorf("status: %w", err)
	}
	if ok {
		st.CurrentTicket = parseNumber(current)
	}
	next, ok, err := d.store.Index(ctx, keys.Queue, 0)
	if err != nil {
		return model.Status{}, fmt.Errorf("status: %w", err)
	}
	if ok {
		st.NextTicket = parseNumber(next)
	}
	return st, nil
}

func parseNumber(raw string) *int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
