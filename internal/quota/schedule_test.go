package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lingoloop/lingoloop/internal/config"
)

func TestSchedule_Next(t *testing.T) {
	s := Schedule{Hour: 1, Minute: 30, Location: time.UTC}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before trigger", time.Date(2026, 3, 10, 0, 15, 0, 0, time.UTC), time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)},
		{"after trigger", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 1, 30, 0, 0, time.UTC)},
		{"exactly at trigger", time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC), time.Date(2026, 3, 11, 1, 30, 0, 0, time.UTC)},
		{"month rollover", time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 1, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(s.Next(tt.now)), "got %s", s.Next(tt.now))
		})
	}
}

func TestSchedule_NextInOtherZone(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	s := Schedule{Hour: 1, Minute: 0, Location: zone}

	// 22:30 UTC is 00:30 the next day in UTC+2.
	now := time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC)
	want := time.Date(2026, 3, 11, 1, 0, 0, 0, zone)
	assert.True(t, want.Equal(s.Next(now)))
}

func TestNewSchedule(t *testing.T) {
	s := NewSchedule(config.SchedulerConfig{ResetHour: 4, ResetMinute: 15}, nil)
	assert.Equal(t, 4, s.Hour)
	assert.Equal(t, 15, s.Minute)
	assert.Equal(t, time.UTC, s.Location)
}

func TestDateOf(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*60*60)
	got := DateOf(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), zone)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got)
}
