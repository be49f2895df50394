package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Quota.MaxUnits)
	assert.Equal(t, "UTC", cfg.Quota.Timezone)
	assert.Equal(t, StorePostgres, cfg.Quota.Store)
	assert.Equal(t, 5*time.Second, cfg.Quota.StoreTimeout)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 1, cfg.Scheduler.ResetHour)
	assert.Equal(t, 0, cfg.Scheduler.ResetMinute)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, 3, cfg.Scheduler.AlertThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.LockTTL)
	assert.Equal(t, 168*time.Hour, cfg.NATS.EventsMaxAge)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QUOTA_MAX_UNITS", "3")
	t.Setenv("QUOTA_STORE", "MEMORY")
	t.Setenv("QUOTA_OP_TIMEOUT", "750ms")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_RESET_HOUR", "0")
	t.Setenv("SCHEDULER_RESET_MINUTE", "30")
	t.Setenv("SCHEDULER_RETRY_DELAY", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Quota.MaxUnits)
	assert.Equal(t, StoreMemory, cfg.Quota.Store)
	assert.Equal(t, 750*time.Millisecond, cfg.Quota.StoreTimeout)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 0, cfg.Scheduler.ResetHour)
	assert.Equal(t, 30, cfg.Scheduler.ResetMinute)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_StoreAndTimeoutAreIndependent(t *testing.T) {
	t.Run("timeout alone", func(t *testing.T) {
		t.Setenv("QUOTA_OP_TIMEOUT", "2s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, StorePostgres, cfg.Quota.Store)
		assert.Equal(t, 2*time.Second, cfg.Quota.StoreTimeout)
	})

	t.Run("both set", func(t *testing.T) {
		t.Setenv("QUOTA_STORE", "memory")
		t.Setenv("QUOTA_OP_TIMEOUT", "2s")
		t.Setenv("JWT_ACCESS_SECRET", "0123456789abcdef0123456789abcdef")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, StoreMemory, cfg.Quota.Store)
		assert.Equal(t, 2*time.Second, cfg.Quota.StoreTimeout)
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SCHEDULER_RETRY_DELAY", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.retry.delay")
}

func TestQuotaConfig_Location(t *testing.T) {
	assert.Equal(t, time.UTC, QuotaConfig{Timezone: "UTC"}.Location())
	assert.Equal(t, time.UTC, QuotaConfig{Timezone: "not/a-zone"}.Location())

	loc := QuotaConfig{Timezone: "Europe/Berlin"}.Location()
	assert.Equal(t, "Europe/Berlin", loc.String())
}
