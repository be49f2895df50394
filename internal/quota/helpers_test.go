package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lingoloop/lingoloop/internal/config"
	inats "github.com/lingoloop/lingoloop/internal/nats"
)

// 09:00 UTC on a Tuesday; the default reset is 01:00 UTC.
var day1 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testQuotaConfig() config.QuotaConfig {
	return config.QuotaConfig{
		MaxUnits:     5,
		Timezone:     "UTC",
		StoreTimeout: time.Second,
		Store:        config.StoreMemory,
	}
}

func testSchedule() Schedule {
	return Schedule{Hour: 1, Minute: 0, Location: time.UTC}
}

func newTestService(t *testing.T, store Store, clock clockwork.Clock) *Service {
	t.Helper()
	return NewService(store, clock, testQuotaConfig(), testSchedule(), nil)
}

func newMemoryService(t *testing.T) (*Service, *MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(day1)
	store := NewMemoryStore(clock)
	return newTestService(t, store, clock), store, clock
}

// faultyStore injects errors into selected operations of a wrapped Store.
type faultyStore struct {
	Store

	mu            sync.Mutex
	findErr       error
	insertErr     error
	decrementErr  error
	bulkErr       error
	blockDecr     bool
	decrementSeen int
}

func (f *faultyStore) set(fn func(*faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyStore) FindForDate(ctx context.Context, userID string, date time.Time) (*Record, error) {
	f.mu.Lock()
	err := f.findErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.FindForDate(ctx, userID, date)
}

func (f *faultyStore) Insert(ctx context.Context, userID string, units int, date time.Time) (*Record, error) {
	f.mu.Lock()
	err := f.insertErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Insert(ctx, userID, units, date)
}

func (f *faultyStore) DecrementIfPositive(ctx context.Context, userID string) (*Record, error) {
	f.mu.Lock()
	err, block := f.decrementErr, f.blockDecr
	f.decrementSeen++
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return f.Store.DecrementIfPositive(ctx, userID)
}

func (f *faultyStore) BulkResetStale(ctx context.Context, today time.Time, units int) (int64, error) {
	f.mu.Lock()
	err := f.bulkErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.Store.BulkResetStale(ctx, today, units)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []inats.AuditEvent
}

func (p *recordingPublisher) PublishAuditEvent(_ context.Context, event inats.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}
