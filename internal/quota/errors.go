package quota

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateKey is returned by Store.Insert when a record for the
	// same (user, date) already exists.
	ErrDuplicateKey = errors.New("quota record already exists for date")

	// ErrDenied is returned by Store.DecrementIfPositive when the current
	// record has no units left. The record is not modified.
	ErrDenied = errors.New("no units remaining")

	// ErrNotFound is returned when the user has no quota record at all.
	ErrNotFound = errors.New("quota record not found")

	// ErrAlreadyRunning is returned by Scheduler.TriggerNow while a reset
	// cycle is in flight.
	ErrAlreadyRunning = errors.New("quota reset already running")
)

// ExhaustedError is the user-facing result of consuming with zero units.
type ExhaustedError struct {
	NextResetAt    time.Time
	UnitsRemaining int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("quota exhausted: next reset at %s", e.NextResetAt.Format(time.RFC3339))
}

// AsExhausted reports whether err carries an ExhaustedError.
func AsExhausted(err error) (*ExhaustedError, bool) {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted, true
	}
	return nil, false
}
