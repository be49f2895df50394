package quota

import (
	"context"
	"log/slog"
	"time"

	inats "github.com/lingoloop/lingoloop/internal/nats"
)

// Alert is the high-severity signal raised when reset cycles keep failing.
type Alert struct {
	ConsecutiveFailures int
	LastError           string
	LastSuccessfulReset time.Time
	At                  time.Time
}

// Alerter delivers scheduler alerts to operators.
type Alerter interface {
	Alert(ctx context.Context, alert Alert)
}

// LogAlerter writes alerts to the error log.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, alert Alert) {
	args := []any{
		"consecutive_failures", alert.ConsecutiveFailures,
		"last_error", alert.LastError,
	}
	if !alert.LastSuccessfulReset.IsZero() {
		args = append(args, "last_successful_reset", alert.LastSuccessfulReset)
	}
	slog.Error("quota: daily reset failing repeatedly", args...)
}

// AlertPublisher is satisfied by *inats.Publisher.
type AlertPublisher interface {
	PublishAlertEvent(ctx context.Context, event inats.AlertEvent) error
}

// AlertSeverity marks scheduler alerts on the alert subject.
const AlertSeverity = "critical"

// EventAlerter logs the alert and publishes it on the alert subject.
type EventAlerter struct {
	pub AlertPublisher
}

// NewEventAlerter creates a new EventAlerter.
func NewEventAlerter(pub AlertPublisher) *EventAlerter {
	return &EventAlerter{pub: pub}
}

func (a *EventAlerter) Alert(ctx context.Context, alert Alert) {
	LogAlerter{}.Alert(ctx, alert)

	event := inats.AlertEvent{
		Source:              "quota-scheduler",
		Severity:            AlertSeverity,
		Message:             "daily quota reset failing repeatedly",
		ConsecutiveFailures: alert.ConsecutiveFailures,
		LastError:           alert.LastError,
		Timestamp:           alert.At.UTC(),
	}
	if !alert.LastSuccessfulReset.IsZero() {
		last := alert.LastSuccessfulReset.UTC()
		event.LastSuccessfulReset = &last
	}
	if err := a.pub.PublishAlertEvent(ctx, event); err != nil {
		slog.Error("quota: publishing alert event", "error", err)
	}
}
