package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "LINGOLOOP_EVENTS"
)

// Subject constants.
const (
	SubjectAuditEvent = "lingoloop.events.audit"
	SubjectAlertEvent = "lingoloop.events.alert"
)

// AuditEvent is published for every quota mutation worth keeping a trail of.
type AuditEvent struct {
	OwnerUserID  string    `json:"owner_user_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}

// AlertEvent is published when the reset scheduler crosses its failure
// threshold.
type AlertEvent struct {
	Source              string `json:"source"`
	Severity            string `json:"severity"` // critical
	Message             string `json:"message"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	// LastSuccessfulReset is nil until a cycle has ever succeeded.
	LastSuccessfulReset *time.Time `json:"last_successful_reset,omitempty"`
	Timestamp           time.Time  `json:"timestamp"`
}
