package quota

import (
	"time"

	"github.com/lingoloop/lingoloop/internal/config"
)

// Schedule is a fixed time of day in a reference timezone.
type Schedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// NewSchedule builds the reset schedule from configuration.
func NewSchedule(cfg config.SchedulerConfig, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{Hour: cfg.ResetHour, Minute: cfg.ResetMinute, Location: loc}
}

// Next returns the first trigger time strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	local := t.In(s.Location)
	y, m, d := local.Date()
	next := time.Date(y, m, d, s.Hour, s.Minute, 0, 0, s.Location)
	if !next.After(local) {
		next = time.Date(y, m, d+1, s.Hour, s.Minute, 0, 0, s.Location)
	}
	return next
}
