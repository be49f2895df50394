package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lingoloop/lingoloop/internal/config"
	"github.com/lingoloop/lingoloop/internal/metrics"
	inats "github.com/lingoloop/lingoloop/internal/nats"
)

// Audit event types published by the service.
const (
	EventConsumed  = "quota_consumed"
	EventExhausted = "quota_exhausted"
	EventUserReset = "quota_user_reset"
	EventBulkReset = "quota_bulk_reset"
)

// SystemOwner owns audit entries that are not tied to one user.
const SystemOwner = "system"

// EventPublisher receives quota audit events. *inats.Publisher satisfies it.
type EventPublisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Service implements the quota business operations on top of a Store.
// It never resets a prior-day record on the request path; resets happen
// only through ResetAllStale and ForceResetUser.
type Service struct {
	store    Store
	clock    clockwork.Clock
	schedule Schedule
	loc      *time.Location
	maxUnits int
	timeout  time.Duration
	events   EventPublisher
}

// NewService creates a new quota Service. events may be nil.
func NewService(store Store, clock clockwork.Clock, cfg config.QuotaConfig, schedule Schedule, events EventPublisher) *Service {
	return &Service{
		store:    store,
		clock:    clock,
		schedule: schedule,
		loc:      cfg.Location(),
		maxUnits: cfg.MaxUnits,
		timeout:  cfg.StoreTimeout,
		events:   events,
	}
}

// MaxUnits returns the configured daily allowance.
func (s *Service) MaxUnits() int {
	return s.maxUnits
}

// Today returns the current calendar day in the reference timezone.
func (s *Service) Today() time.Time {
	return DateOf(s.clock.Now(), s.loc)
}

// NextResetAt returns the next scheduled reset. It is computed, not stored.
func (s *Service) NextResetAt() time.Time {
	return s.schedule.Next(s.clock.Now())
}

// GetOrCreateToday returns today's record, creating it with full units if
// the user has none for today. A concurrent creator winning the insert is
// resolved by re-fetching.
func (s *Service) GetOrCreateToday(ctx context.Context, userID string) (*Record, error) {
	today := s.Today()

	rec, err := s.findForDate(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	rec, err = s.insert(ctx, userID, today)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return nil, err
	}

	rec, err = s.findForDate(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("quota record for %s missing after duplicate insert", userID)
	}
	return rec, nil
}

// Consume takes one unit from the user's current record. When none are
// left it returns an *ExhaustedError. A failed or timed-out decrement is
// returned as is; it must not be retried blindly.
func (s *Service) Consume(ctx context.Context, userID string) (*Record, error) {
	if _, err := s.GetOrCreateToday(ctx, userID); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.store.DecrementIfPositive(opCtx, userID)
	switch {
	case err == nil:
		metrics.QuotaConsumeTotal.WithLabelValues("consumed").Inc()
		s.publish(ctx, userID, EventConsumed, "info", rec.ID.String(),
			"units remaining: "+strconv.Itoa(rec.UnitsRemaining))
		return rec, nil
	case errors.Is(err, ErrDenied):
		metrics.QuotaConsumeTotal.WithLabelValues("exhausted").Inc()
		s.publish(ctx, userID, EventExhausted, "warn", "", "consume denied at zero units")
		return nil, &ExhaustedError{NextResetAt: s.NextResetAt(), UnitsRemaining: 0}
	default:
		metrics.QuotaConsumeTotal.WithLabelValues("error").Inc()
		s.storeError("decrement")
		return nil, fmt.Errorf("consuming quota unit: %w", err)
	}
}

// ResetAllStale restores full units on every stale current record. "Today"
// is fixed once per call so one run never straddles two days.
func (s *Service) ResetAllStale(ctx context.Context) (int64, error) {
	today := s.Today()

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	affected, err := s.store.BulkResetStale(opCtx, today, s.maxUnits)
	if err != nil {
		s.storeError("bulk_reset")
		return 0, err
	}

	s.publish(ctx, SystemOwner, EventBulkReset, "info", "",
		fmt.Sprintf("reset %d records for %s", affected, today.Format(dateLayout)))
	return affected, nil
}

// ForceResetUser is an operational escape hatch outside normal gating: it
// sets the user's current record to full units dated today, creating one
// if the user has none.
func (s *Service) ForceResetUser(ctx context.Context, userID string) (*Record, error) {
	today := s.Today()

	// A concurrent first touch can create today's row between our steps;
	// one retry picks it up as the current record.
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := s.resetCurrent(ctx, userID, today)
		if err != nil && !errors.Is(err, ErrDuplicateKey) {
			return nil, err
		}
		if err == nil && rec == nil {
			rec, err = s.insert(ctx, userID, today)
			if err != nil && !errors.Is(err, ErrDuplicateKey) {
				return nil, err
			}
		}
		if err == nil {
			slog.Info("quota: forced reset", "user_id", userID, "record_id", rec.ID)
			s.publish(ctx, userID, EventUserReset, "warn", rec.ID.String(), "administrative reset to full units")
			return rec, nil
		}
	}
	return nil, fmt.Errorf("force reset for %s: record changed concurrently", userID)
}

// Status returns the user's quota view, creating today's record if needed.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	rec, err := s.GetOrCreateToday(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.StatusOf(rec), nil
}

// StatusOf renders rec as the API view.
func (s *Service) StatusOf(rec *Record) *Status {
	return &Status{
		UnitsRemaining:     rec.UnitsRemaining,
		MaxUnits:           s.maxUnits,
		HasUnitsAvailable:  rec.UnitsRemaining > 0,
		LastResetDate:      rec.LastResetDate.Format(dateLayout),
		NextResetTimestamp: s.NextResetAt(),
	}
}

// History lists the user's per-day records, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.store.History(opCtx, userID, limit)
	if err != nil {
		s.storeError("history")
		return nil, err
	}
	return records, nil
}

func (s *Service) findForDate(ctx context.Context, userID string, date time.Time) (*Record, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.store.FindForDate(opCtx, userID, date)
	if err != nil {
		s.storeError("find_for_date")
		return nil, err
	}
	return rec, nil
}

func (s *Service) insert(ctx context.Context, userID string, date time.Time) (*Record, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.store.Insert(opCtx, userID, s.maxUnits, date)
	if err != nil && !errors.Is(err, ErrDuplicateKey) {
		s.storeError("insert")
	}
	return rec, err
}

func (s *Service) resetCurrent(ctx context.Context, userID string, date time.Time) (*Record, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.store.ResetCurrent(opCtx, userID, s.maxUnits, date)
	if err != nil && !errors.Is(err, ErrDuplicateKey) {
		s.storeError("reset_current")
	}
	return rec, err
}

func (s *Service) storeError(op string) {
	metrics.QuotaStoreErrorsTotal.WithLabelValues(op).Inc()
}

func (s *Service) publish(ctx context.Context, owner, eventType, severity, resourceID, details string) {
	if s.events == nil {
		return
	}
	event := inats.AuditEvent{
		OwnerUserID:  owner,
		EventType:    eventType,
		Severity:     severity,
		ResourceType: "quota_record",
		ResourceID:   resourceID,
		Details:      details,
		Timestamp:    s.clock.Now().UTC(),
	}
	// Bounded like a store call so a stalled broker cannot stall the gate.
	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.events.PublishAuditEvent(pubCtx, event); err != nil {
		slog.Error("quota: publishing audit event", "error", err, "event_type", eventType)
	}
}
