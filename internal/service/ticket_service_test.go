package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/psds-microservice/ticket-queue/internal/daykey"
	"github.com/psds-microservice/ticket-queue/internal/errs"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	svc   *TicketService
	mr    *miniredis.Miniredis
	clock *testClock
	keys  daykey.Keys
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &testClock{t: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	resolver := daykey.NewResolver(daykey.WithClock(clock.Now))
	return &fixture{
		svc:   NewTicketService(kvstore.NewRedisStore(client), resolver, zap.NewNop()),
		mr:    mr,
		clock: clock,
		keys:  resolver.KeysFor("2026-10-16"),
	}
}

func (f *fixture) take(t *testing.T) model.TakeResult {
	t.Helper()
	res, err := f.svc.Take(context.Background(), "poste")
	require.NoError(t, err)
	require.False(t, res.Closed)
	return res
}

func (f *fixture) statusOf(n int64) string {
	return f.mr.HGet(f.keys.Ticket(n), model.FieldStatus)
}

func TestExampleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DayResult{Day: "2026-10-16", Open: true}, day)

	first := f.take(t)
	assert.Equal(t, int64(1), first.Ticket.Number)
	assert.Equal(t, int64(0), first.WaitingBefore)
	assert.Equal(t, model.TicketStatusWaiting, first.Ticket.Status)
	assert.Equal(t, "poste", first.Ticket.ServiceType)

	second := f.take(t)
	assert.Equal(t, int64(2), second.Ticket.Number)
	assert.Equal(t, int64(1), second.WaitingBefore)

	called, err := f.svc.CallNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, called.CurrentTicket)
	assert.Equal(t, int64(1), *called.CurrentTicket)
	require.NotNil(t, called.WaitingTickets)
	assert.Equal(t, int64(1), *called.WaitingTickets)

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Open)
	assert.Equal(t, int64(1), st.QueueLength)
	require.NotNil(t, st.CurrentTicket)
	assert.Equal(t, int64(1), *st.CurrentTicket)
	require.NotNil(t, st.NextTicket)
	assert.Equal(t, int64(2), *st.NextTicket)

	finished, err := f.svc.FinishCurrent(ctx)
	require.NoError(t, err)
	require.NotNil(t, finished.FinishedTicket)
	assert.Equal(t, int64(1), *finished.FinishedTicket)

	called, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, called.CurrentTicket)
	assert.Equal(t, int64(2), *called.CurrentTicket)
	require.NotNil(t, called.WaitingTickets)
	assert.Equal(t, int64(0), *called.WaitingTickets)
}

func TestConcurrentTakesAreUniqueAndDense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)

	const n = 60
	numbers := make([]int64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Take(ctx, "")
			if assert.NoError(t, err) && assert.NotNil(t, res.Ticket) {
				numbers[i] = res.Ticket.Number
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, got := range numbers {
		assert.Equal(t, int64(i+1), got)
	}

	queue, err := f.mr.List(f.keys.Queue)
	require.NoError(t, err)
	assert.Len(t, queue, n)
	for _, raw := range queue {
		assert.Equal(t, "waiting", f.mr.HGet(f.keys.TicketPrefix+":"+raw, model.FieldStatus))
	}
}

func TestCallNextFollowsTakeOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)

	var taken []int64
	for i := 0; i < 5; i++ {
		taken = append(taken, f.take(t).Ticket.Number)
	}
	var called []int64
	for i := 0; i < 5; i++ {
		res, err := f.svc.CallNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, res.CurrentTicket)
		called = append(called, *res.CurrentTicket)
		_, err = f.svc.FinishCurrent(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, taken, called)

	res, err := f.svc.CallNext(ctx)
	require.NoError(t, err)
	assert.False(t, res.Called)
	assert.Nil(t, res.CurrentTicket)
	assert.Equal(t, NoWaitingMessage, res.Message)
}

func TestConcurrentCallNextNeverSharesATicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		f.take(t)
	}

	var mu sync.Mutex
	seen := map[int64]int{}
	var wg sync.WaitGroup
	wg.Add(30)
	for i := 0; i < 30; i++ {
		go func() {
			defer wg.Done()
			res, err := f.svc.CallNext(ctx)
			if !assert.NoError(t, err) || !res.Called {
				return
			}
			mu.Lock()
			seen[*res.CurrentTicket]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for n, count := range seen {
		assert.Equal(t, 1, count, "ticket %d called more than once", n)
	}
}

func TestTakeRefusedWhenClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Take(ctx, "poste")
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, ClosedMessage, res.Message)
	assert.Nil(t, res.Ticket)
	assert.False(t, f.mr.Exists(f.keys.Counter))
	assert.False(t, f.mr.Exists(f.keys.Queue))

	_, err = f.svc.StartDay(ctx)
	require.NoError(t, err)
	f.take(t)
	_, err = f.svc.EndDay(ctx)
	require.NoError(t, err)

	res, err = f.svc.Take(ctx, "poste")
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.False(t, f.mr.Exists(f.keys.Counter))
}

func TestStartDayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	f.take(t)
	f.take(t)

	again, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	assert.True(t, again.Open)

	counter, err := f.mr.Get(f.keys.Counter)
	require.NoError(t, err)
	assert.Equal(t, "2", counter)
	queue, err := f.mr.List(f.keys.Queue)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, queue)
	assert.Equal(t, int64(3), f.take(t).Ticket.Number)
}

func TestStatusMovesForwardOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)

	nothing, err := f.svc.FinishCurrent(ctx)
	require.NoError(t, err)
	assert.False(t, nothing.Finished)
	assert.Nil(t, nothing.FinishedTicket)
	assert.Equal(t, NoInProgressMessage, nothing.Message)

	f.take(t)
	assert.Equal(t, "waiting", f.statusOf(1))

	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", f.statusOf(1))

	_, err = f.svc.FinishCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, "completed", f.statusOf(1))
	assert.False(t, f.mr.Exists(f.keys.Current))

	again, err := f.svc.FinishCurrent(ctx)
	require.NoError(t, err)
	assert.False(t, again.Finished)
	assert.Equal(t, "completed", f.statusOf(1))
}

func TestCallNextOverwritesUnfinishedCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	f.take(t)
	f.take(t)

	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	res, err := f.svc.CallNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *res.CurrentTicket)

	current, err := f.mr.Get(f.keys.Current)
	require.NoError(t, err)
	assert.Equal(t, "2", current)
	assert.Equal(t, "in_progress", f.statusOf(1))
}

func TestEndDayTearsDownEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		f.take(t)
	}
	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	require.NoError(t, f.mr.Set("unrelated", "x"))

	res, err := f.svc.EndDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DayResult{Day: "2026-10-16", Ended: true, Open: false}, res)

	assert.Equal(t, []string{"unrelated"}, f.mr.Keys())

	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Open)
	assert.Equal(t, int64(0), st.QueueLength)
	assert.Nil(t, st.CurrentTicket)
	assert.Nil(t, st.NextTicket)
}

func TestEndDayWithoutOpenDay(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.EndDay(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ended)
	assert.False(t, res.Open)
}

func TestDayKeysCarryTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	f.take(t)

	assert.Equal(t, 12*time.Hour, f.mr.TTL(f.keys.Marker))
	assert.Equal(t, 12*time.Hour, f.mr.TTL(f.keys.Counter))
	assert.Equal(t, 12*time.Hour, f.mr.TTL(f.keys.Queue))
	assert.Equal(t, 12*time.Hour, f.mr.TTL(f.keys.Logs))
	assert.Equal(t, 12*time.Hour, f.mr.TTL(f.keys.Ticket(1)))

	f.clock.Advance(time.Hour)
	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11*time.Hour, f.mr.TTL(f.keys.Current))
	assert.Equal(t, 11*time.Hour, f.mr.TTL(f.keys.Ticket(1)))
}

func TestNewDayStartsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	f.take(t)

	f.clock.Advance(13 * time.Hour)
	st, err := f.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17", st.Day)
	assert.False(t, st.Open)

	res, err := f.svc.Take(ctx, "")
	require.NoError(t, err)
	assert.True(t, res.Closed)
}

func TestGetTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	f.take(t)

	got, err := f.svc.GetTicket(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Number)
	assert.Equal(t, model.TicketStatusWaiting, got.Status)
	assert.Equal(t, "2026-10-16T12:00:00Z", got.CreationTimeISO)

	_, err = f.svc.GetTicket(ctx, 99)
	assert.ErrorIs(t, err, errs.ErrTicketNotFound)
}

func TestSnapshotAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)

	f.take(t)
	f.clock.Advance(time.Minute)
	f.take(t)
	f.clock.Advance(time.Minute)
	f.take(t)
	f.clock.Advance(time.Minute)
	f.take(t)
	_, err = f.svc.CallNext(ctx)
	require.NoError(t, err)
	// Corrupt ticket 4: it stays listed but is left out of the average.
	f.mr.HSet(f.keys.Ticket(4), model.FieldCreationTime, "garbage")
	f.clock.Advance(time.Minute)

	snap, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Open)
	assert.Equal(t, int64(3), snap.QueueLength)
	assert.Equal(t, int64(4), snap.TotalTickets)
	require.Len(t, snap.WaitingList, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{snap.WaitingList[0].Number, snap.WaitingList[1].Number, snap.WaitingList[2].Number})

	require.NotNil(t, snap.CurrentTicketData)
	assert.Equal(t, int64(1), snap.CurrentTicketData.Number)
	assert.Equal(t, model.TicketStatusInProgress, snap.CurrentTicketData.Status)

	// Ticket 2 waited 3 minutes, ticket 3 waited 2 minutes.
	require.NotNil(t, snap.AvgWaitSeconds)
	assert.InDelta(t, 150.0, *snap.AvgWaitSeconds, 0.01)

	// marker, counter, queue, current, logs + 4 records
	assert.Equal(t, 9, snap.KeyCount)
	assert.Equal(t, 4, snap.HashCount)
	require.NotNil(t, snap.TTLSeconds)
	assert.Equal(t, int64(12*3600-4*60), *snap.TTLSeconds)

	require.NotEmpty(t, snap.Logs)
	assert.Equal(t, "call_next:1", snap.Logs[0].Message)
}

func TestSnapshotWhenClosed(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Open)
	assert.Empty(t, snap.WaitingList)
	assert.Nil(t, snap.AvgWaitSeconds)
	assert.Nil(t, snap.TTLSeconds)
	assert.Zero(t, snap.TotalTickets)
	assert.Zero(t, snap.KeyCount)
}

func TestLogIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.StartDay(ctx)
	require.NoError(t, err)
	for i := 0; i < 60; i++ {
		f.take(t)
	}

	stored, err := f.mr.List(f.keys.Logs)
	require.NoError(t, err)
	assert.Len(t, stored, 50)

	snap, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Logs, 20)
	for i, entry := range snap.Logs {
		assert.Equal(t, fmt.Sprintf("take_ticket:%d", 60-i), entry.Message)
		assert.Equal(t, "2026-10-16T12:00:00Z", entry.At)
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := f.svc.Take(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStore)

	_, err = f.svc.StartDay(context.Background())
	assert.ErrorIs(t, err, errs.ErrStore)
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	dc := f.svc.ledger.resolver.Resolve()
	err := f.svc.ledger.setStatus(context.Background(), dc, f.keys, 1, model.TicketStatus("cancelled"))
	assert.ErrorIs(t, err, errs.ErrInvalidStatus)
}

func TestCallNextOnEmptyQueueOmitsWaitingCount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartDay(context.Background())
	require.NoError(t, err)

	res, err := f.svc.CallNext(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Called)
	assert.Equal(t, NoWaitingMessage, res.Message)
	assert.Nil(t, res.CurrentTicket)
	assert.Nil(t, res.WaitingTickets)
}

// failAfterClaim пропускает GETDEL текущего тикета и роняет следующий batch.
type failAfterClaim struct {
	kvstore.Store
	claimed bool
}

func (s *failAfterClaim) GetDelete(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.Store.GetDelete(ctx, key)
	s.claimed = ok && err == nil
	return v, ok, err
}

func (s *failAfterClaim) Pipeline(ctx context.Context, fn func(kvstore.Batch)) error {
	if s.claimed {
		return fmt.Errorf("%w: connection reset", errs.ErrStore)
	}
	return s.Store.Pipeline(ctx, fn)
}

func TestFinishCurrentLogsTicketLeftInProgress(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	resolver := daykey.NewResolver(daykey.WithClock(func() time.Time { return now }))
	keys := resolver.KeysFor("2026-10-16")
	store := &failAfterClaim{Store: kvstore.NewRedisStore(client)}
	core, logs := observer.New(zap.ErrorLevel)
	svc := NewTicketService(store, resolver, zap.New(core))
	ctx := context.Background()

	_, err := svc.StartDay(ctx)
	require.NoError(t, err)
	_, err = svc.Take(ctx, "")
	require.NoError(t, err)
	_, err = svc.CallNext(ctx)
	require.NoError(t, err)

	_, err = svc.FinishCurrent(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStore)

	assert.False(t, mr.Exists(keys.Current))
	assert.Equal(t, string(model.TicketStatusInProgress), mr.HGet(keys.Ticket(1), model.FieldStatus))

	entries := logs.FilterMessage("finished ticket left in_progress").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["ticket"])
	assert.Equal(t, "2026-10-16", entries[0].ContextMap()["day"])
}
