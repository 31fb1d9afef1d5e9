package service

import (
	"context"
	"errors"

	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/errs"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"go.uber.org/zap"
)

// TicketServicer — интерфейс для HTTP-хендлеров и CLI (Dependency Inversion).
type TicketServicer interface {
	StartDay(ctx context.Context) (model.DayResult, error)
	EndDay(ctx context.Context) (model.DayResult, error)
	Take(ctx context.Context, serviceType string) (model.TakeResult, error)
	Status(ctx context.Context) (model.Status, error)
	CallNext(ctx context.Context) (model.CallNextResult, error)
	FinishCurrent(ctx context.Context) (model.FinishResult, error)
	Snapshot(ctx context.Context) (model.Snapshot, error)
	GetTicket(ctx context.Context, number int64) (*model.Ticket, error)
}

// TicketService связывает компоненты очереди поверх одного хранилища.
// Собственного состояния нет: день вычисляется заново на каждый вызов.
type TicketService struct {
	ledger     *Ledger
	dispatcher *Dispatcher
	lifecycle  *Lifecycle
	snapshots  *Snapshotter
}

func NewTicketService(store kvstore.Store, resolver *daykey.Resolver, log *zap.Logger) *TicketService {
	if log == nil {
		log = zap.NewNop()
	}
	activity := NewActivityLog(store)
	ledger := NewLedger(store, resolver, activity, log)
	dispatcher := NewDispatcher(store, resolver, ledger, activity, log)
	return &TicketService{
		ledger:     ledger,
		dispatcher: dispatcher,
		lifecycle:  NewLifecycle(store, resolver, activity, log),
		snapshots:  NewSnapshotter(store, resolver, ledger, dispatcher, activity),
	}
}

func (s *TicketService) StartDay(ctx context.Context) (model.DayResult, error) {
	return s.lifecycle.StartDay(ctx)
}

func (s *TicketService) EndDay(ctx context.Context) (model.DayResult, error) {
	return s.lifecycle.EndDay(ctx)
}

func (s *TicketService) Take(ctx context.Context, serviceType string) (model.TakeResult, error) {
	return s.dispatcher.Take(ctx, serviceType)
}

func (s *TicketService) Status(ctx context.Context) (model.Status, error) {
	return s.dispatcher.Status(ctx)
}

func (s *TicketService) CallNext(ctx context.Context) (model.CallNextResult, error) {
	return s.dispatcher.CallNext(ctx)
}

func (s *TicketService) FinishCurrent(ctx context.Context) (model.FinishResult, error) {
	return s.dispatcher.FinishCurrent(ctx)
}

func (s *TicketService) Snapshot(ctx context.Context) (model.Snapshot, error) {
	return s.snapshots.Snapshot(ctx)
}

func (s *TicketService) GetTicket(ctx context.Context, number int64) (*model.Ticket, error) {
	return s.ledger.Get(ctx, number)
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrTicketNotFound)
}
