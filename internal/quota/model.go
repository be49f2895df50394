package quota

import (
	"time"

	"github.com/google/uuid"
)

// Record matches the quota_records table schema. One row exists per
// (user_id, last_reset_date); the row with the latest date is the user's
// current record.
type Record struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	UnitsRemaining int       `json:"units_remaining"`
	LastResetDate  time.Time `json:"last_reset_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status is the API view of a user's quota.
type Status struct {
	UnitsRemaining     int       `json:"units_remaining"`
	MaxUnits           int       `json:"max_units"`
	HasUnitsAvailable  bool      `json:"has_units_available"`
	LastResetDate      string    `json:"last_reset_date"`
	NextResetTimestamp time.Time `json:"next_reset_timestamp"`
}

// Outcome classifies how a gated action ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeNeutral Outcome = "neutral"
)

// GateResult reports what the gate did around an action.
type GateResult struct {
	Outcome        Outcome `json:"outcome"`
	Penalized      bool    `json:"penalized"`
	UnitsRemaining *int    `json:"units_remaining,omitempty"`
}

// dateLayout is the wire format of last_reset_date.
const dateLayout = "2006-01-02"

// DateOf truncates t to its calendar day in loc and returns that day as
// midnight UTC, the representation used for last_reset_date everywhere.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
