package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/model"
)

const snapshotWaitingLimit = 50

// Snapshotter собирает снимок для дашборда. Ничего не пишет.
type Snapshotter struct {
	store      kvstore.Store
	resolver   *daykey.Resolver
	ledger     *Ledger
	dispatcher *Dispatcher
	activity   *ActivityLog
}

func NewSnapshotter(store kvstore.Store, resolver *daykey.Resolver, ledger *Ledger, dispatcher *Dispatcher, activity *ActivityLog) *Snapshotter {
	return &Snapshotter{store: store, resolver: resolver, ledger: ledger, dispatcher: dispatcher, activity: activity}
}

// Snapshot читает статус, первые 50 ожидающих, текущий тикет, 20 последних
// записей журнала, счётчик и среднее ожидание по списку.
// Число ключей считается полным scan пространства дня.
func (s *Snapshotter) Snapshot(ctx context.Context) (model.Snapshot, error) {
	dc := s.resolver.Resolve()
	keys := s.resolver.KeysFor(dc.Day)

	st, err := s.dispatcher.status(ctx, dc, keys)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	snap := model.Snapshot{
		Status:      st,
		WaitingList: []model.Ticket{},
	}

	if snap.Logs, err = s.activity.Recent(ctx, keys, logSurfaced); err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	if !st.Open {
		return snap, nil
	}

	waiting, err := s.store.Range(ctx, keys.Queue, 0, snapshotWaitingLimit-1)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	now := float64(dc.Now.UnixNano()) / 1e9
	var waitSum float64
	var waitN int
	for _, raw := range waiting {
		number, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		fields, err := s.store.HashGetAll(ctx, keys.Ticket(number))
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
		}
		t, createdOK := model.TicketFromFields(number, fields)
		snap.WaitingList = append(snap.WaitingList, t)
		if createdOK {
			waitSum += now - t.CreationTime
			waitN++
		}
	}
	if waitN > 0 {
		avg := waitSum / float64(waitN)
		snap.AvgWaitSeconds = &avg
	}

	if st.CurrentTicket != nil {
		t, err := s.ledger.get(ctx, keys, *st.CurrentTicket)
		switch {
		case err == nil:
			snap.CurrentTicketData = t
		case !isNotFound(err):
			return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
		}
	}

	counter, ok, err := s.store.Get(ctx, keys.Counter)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	if ok {
		snap.TotalTickets, _ = strconv.ParseInt(counter, 10, 64)
	}

	all, err := kvstore.ScanAll(ctx, s.store, keys.NamespacePattern(), scanPageSize)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	records, err := kvstore.ScanAll(ctx, s.store, keys.TicketPattern(), scanPageSize)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	snap.KeyCount = len(all)
	snap.HashCount = len(records)
	ttl := dc.TTLSeconds()
	snap.TTLSeconds = &ttl
	return snap, nil
}
