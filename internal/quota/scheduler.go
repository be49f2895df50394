package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jonboulle/clockwork"

	"github.com/lingoloop/lingoloop/internal/config"
	"github.com/lingoloop/lingoloop/internal/metrics"
)

// State is the scheduler's position in a reset cycle.
type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StateSucceeded      State = "succeeded"
	StateFailedRetrying State = "failed_retrying"
	StateFailedTerminal State = "failed_terminal"
)

// Resetter runs one bulk reset. *Service satisfies it.
type Resetter interface {
	ResetAllStale(ctx context.Context) (int64, error)
}

// CycleResult reports a completed reset cycle.
type CycleResult struct {
	AffectedCount int64     `json:"affected_count"`
	RanAt         time.Time `json:"ran_at"`
}

// SchedulerStatus is the health view of the scheduler.
type SchedulerStatus struct {
	State               State      `json:"state"`
	LastResult          State      `json:"last_result,omitempty"`
	IsRunning           bool       `json:"is_running"`
	LastSuccessfulReset *time.Time `json:"last_successful_reset"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	NextScheduledRun    *time.Time `json:"next_scheduled_run"`
	LastError           string     `json:"last_error,omitempty"`
	LastAffected        int64      `json:"last_affected"`
}

// Scheduler drives the daily bulk reset. The running flag is local to this
// process; across instances the optional Locker elects a runner and the
// bulk reset's idempotence makes any duplicate harmless.
type Scheduler struct {
	resetter       Resetter
	clock          clockwork.Clock
	schedule       Schedule
	maxAttempts    uint
	retryDelay     time.Duration
	alertThreshold int
	alerter        Alerter
	lock           Locker

	mu          sync.Mutex
	state       State
	lastResult  State
	running     bool
	lastSuccess time.Time
	failures    int
	nextRun     time.Time
	lastErr     string
	lastAff     int64
}

// NewScheduler creates a new Scheduler. alerter defaults to LogAlerter and
// lock may be nil.
func NewScheduler(resetter Resetter, clock clockwork.Clock, schedule Schedule, cfg config.SchedulerConfig, alerter Alerter, lock Locker) *Scheduler {
	if alerter == nil {
		alerter = LogAlerter{}
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Scheduler{
		resetter:       resetter,
		clock:          clock,
		schedule:       schedule,
		maxAttempts:    uint(attempts),
		retryDelay:     cfg.RetryDelay,
		alertThreshold: cfg.AlertThreshold,
		alerter:        alerter,
		lock:           lock,
		state:          StateIdle,
	}
}

// Start fires a cycle at every scheduled time until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.Info("quota scheduler started",
		"reset_hour", s.schedule.Hour,
		"reset_minute", s.schedule.Minute,
		"timezone", s.schedule.Location.String(),
	)

	for {
		now := s.clock.Now()
		next := s.schedule.Next(now)
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		timer := s.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("quota scheduler stopped")
			return nil
		case <-timer.Chan():
		}

		// Cycle failures are recorded and logged inside TriggerNow.
		if _, err := s.TriggerNow(ctx); errors.Is(err, ErrAlreadyRunning) {
			slog.Warn("quota scheduler: overlapping trigger skipped")
		}
	}
}

// TriggerNow runs one cycle on the caller's goroutine. It returns
// ErrAlreadyRunning without blocking if a cycle is in flight here or holds
// the shared lock elsewhere.
func (s *Scheduler) TriggerNow(ctx context.Context) (*CycleResult, error) {
	if !s.begin() {
		metrics.QuotaResetRunsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrAlreadyRunning
	}

	if s.lock != nil {
		release, acquired, err := s.lock.TryLock(ctx)
		switch {
		case err != nil:
			slog.Warn("quota scheduler: reset lock unavailable, running anyway", "error", err)
		case !acquired:
			s.abort()
			metrics.QuotaResetRunsTotal.WithLabelValues("skipped").Inc()
			slog.Info("quota scheduler: reset held by another instance")
			return nil, ErrAlreadyRunning
		default:
			defer release()
		}
	}

	ranAt := s.clock.Now()
	var affected int64
	err := retry.Do(
		func() error {
			n, err := s.resetter.ResetAllStale(ctx)
			if err != nil {
				return err
			}
			affected = n
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.maxAttempts),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.WithTimer(s.clock),
		retry.OnRetry(func(n uint, err error) {
			s.setState(StateFailedRetrying)
			slog.Warn("quota scheduler: reset attempt failed",
				"attempt", n+1, "max_attempts", s.maxAttempts, "error", err)
		}),
	)

	if err != nil {
		if ctx.Err() != nil {
			s.abort()
			return nil, ctx.Err()
		}
		s.fail(ctx, err)
		return nil, fmt.Errorf("quota reset cycle: %w", err)
	}

	s.succeed(affected)
	return &CycleResult{AffectedCount: affected, RanAt: ranAt}, nil
}

// Status returns a snapshot for health inspection.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		State:               s.state,
		LastResult:          s.lastResult,
		IsRunning:           s.running,
		ConsecutiveFailures: s.failures,
		LastError:           s.lastErr,
		LastAffected:        s.lastAff,
	}
	if !s.lastSuccess.IsZero() {
		t := s.lastSuccess
		st.LastSuccessfulReset = &t
	}
	if !s.nextRun.IsZero() {
		t := s.nextRun
		st.NextScheduledRun = &t
	}
	return st
}

// Healthy reports whether the failure streak is below the alert threshold.
func (s *Scheduler) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertThreshold <= 0 || s.failures < s.alertThreshold
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.state = StateRunning
	return true
}

func (s *Scheduler) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.state = StateIdle
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Scheduler) succeed(affected int64) {
	now := s.clock.Now()

	s.mu.Lock()
	s.running = false
	s.state = StateIdle
	s.lastResult = StateSucceeded
	s.lastSuccess = now
	s.failures = 0
	s.lastErr = ""
	s.lastAff = affected
	s.mu.Unlock()

	metrics.QuotaResetRunsTotal.WithLabelValues("succeeded").Inc()
	metrics.QuotaResetRowsTotal.Add(float64(affected))
	metrics.SchedulerConsecutiveFailures.Set(0)
	metrics.SchedulerLastSuccess.Set(float64(now.Unix()))

	slog.Info("quota scheduler: reset cycle succeeded", "affected", affected)
}

func (s *Scheduler) fail(ctx context.Context, err error) {
	s.mu.Lock()
	s.running = false
	s.state = StateIdle
	s.lastResult = StateFailedTerminal
	s.failures++
	s.lastErr = err.Error()
	failures := s.failures
	lastSuccess := s.lastSuccess
	s.mu.Unlock()

	metrics.QuotaResetRunsTotal.WithLabelValues("failed").Inc()
	metrics.SchedulerConsecutiveFailures.Set(float64(failures))

	slog.Error("quota scheduler: reset cycle failed",
		"error", err, "consecutive_failures", failures)

	// Fire once per streak; success re-arms it.
	if failures == s.alertThreshold {
		s.alerter.Alert(ctx, Alert{
			ConsecutiveFailures: failures,
			LastError:           err.Error(),
			LastSuccessfulReset: lastSuccess,
			At:                  s.clock.Now(),
		})
	}
}
