package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/lingoloop/lingoloop/internal/config"
)

func TestEventsStream(t *testing.T) {
	cfg := eventsStream(config.NATSConfig{URL: "nats://localhost:4222", EventsMaxAge: 48 * time.Hour})

	assert.Equal(t, StreamEvents, cfg.Name)
	assert.ElementsMatch(t, []string{SubjectAuditEvent, SubjectAlertEvent}, cfg.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, cfg.Retention)
	assert.Equal(t, 48*time.Hour, cfg.MaxAge)
}
