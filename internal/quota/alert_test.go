package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/lingoloop/lingoloop/internal/nats"
)

type recordingAlertPublisher struct {
	mu     sync.Mutex
	events []inats.AlertEvent
	err    error
}

func (p *recordingAlertPublisher) PublishAlertEvent(_ context.Context, event inats.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func TestEventAlerter_PublishesFullAlert(t *testing.T) {
	pub := &recordingAlertPublisher{}
	lastSuccess := time.Date(2026, 3, 9, 1, 0, 2, 0, time.UTC)
	at := time.Date(2026, 3, 12, 1, 0, 30, 0, time.UTC)

	NewEventAlerter(pub).Alert(context.Background(), Alert{
		ConsecutiveFailures: 3,
		LastError:           "db down",
		LastSuccessfulReset: lastSuccess,
		At:                  at,
	})

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "quota-scheduler", ev.Source)
	assert.Equal(t, AlertSeverity, ev.Severity)
	assert.Equal(t, 3, ev.ConsecutiveFailures)
	assert.Equal(t, "db down", ev.LastError)
	require.NotNil(t, ev.LastSuccessfulReset)
	assert.True(t, ev.LastSuccessfulReset.Equal(lastSuccess))
	assert.True(t, ev.Timestamp.Equal(at))
}

func TestEventAlerter_NeverSucceeded(t *testing.T) {
	pub := &recordingAlertPublisher{}

	NewEventAlerter(pub).Alert(context.Background(), Alert{
		ConsecutiveFailures: 3,
		LastError:           "db down",
		At:                  day1,
	})

	require.Len(t, pub.events, 1)
	assert.Nil(t, pub.events[0].LastSuccessfulReset)
}

func TestEventAlerter_PublishErrorIsSwallowed(t *testing.T) {
	pub := &recordingAlertPublisher{err: errors.New("nats down")}

	assert.NotPanics(t, func() {
		NewEventAlerter(pub).Alert(context.Background(), Alert{ConsecutiveFailures: 3, At: day1})
	})
	assert.Len(t, pub.events, 1)
}

func TestScheduler_AlertThroughEventAlerter(t *testing.T) {
	pub := &recordingAlertPublisher{}
	r := &fakeResetter{affected: 1}
	s := newTestScheduler(r, NewEventAlerter(pub), nil)
	ctx := context.Background()

	_, err := s.TriggerNow(ctx)
	require.NoError(t, err)
	lastSuccess := s.Status().LastSuccessfulReset
	require.NotNil(t, lastSuccess)

	r.mu.Lock()
	r.failures = r.calls + 1000
	r.err = errors.New("db down")
	r.mu.Unlock()
	for i := 0; i < 3; i++ {
		_, _ = s.TriggerNow(ctx)
	}

	require.Len(t, pub.events, 1)
	require.NotNil(t, pub.events[0].LastSuccessfulReset)
	assert.True(t, pub.events[0].LastSuccessfulReset.Equal(*lastSuccess))
	assert.Equal(t, 3, pub.events[0].ConsecutiveFailures)
}
