package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// Admin key: must be a bcrypt hash when set
	if c.Admin.APIKeyHash == "" {
		slog.Warn("ADMIN_API_KEY_HASH is empty, admin endpoints are disabled")
	} else if _, err := bcrypt.Cost([]byte(c.Admin.APIKeyHash)); err != nil {
		errs = append(errs, "ADMIN_API_KEY_HASH must be a bcrypt hash")
	}

	// Storage
	switch c.Quota.Store {
	case StorePostgres:
		if c.DB.Password == "" {
			errs = append(errs, "DB_PASSWORD is required")
		}
	case StoreMemory:
		slog.Warn("QUOTA_STORE=memory, quota records are not durable and not shared between instances")
	default:
		errs = append(errs, fmt.Sprintf("QUOTA_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Quota.Store))
	}

	// Quota
	if c.Quota.MaxUnits < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_MAX_UNITS must be positive, got %d", c.Quota.MaxUnits))
	}
	if _, err := time.LoadLocation(c.Quota.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("QUOTA_TIMEZONE is not a known location: %q", c.Quota.Timezone))
	}
	if c.Quota.StoreTimeout <= 0 {
		errs = append(errs, "QUOTA_OP_TIMEOUT must be positive")
	}

	// Scheduler
	if c.Scheduler.ResetHour < 0 || c.Scheduler.ResetHour > 23 {
		errs = append(errs, fmt.Sprintf("SCHEDULER_RESET_HOUR must be 0–23, got %d", c.Scheduler.ResetHour))
	}
	if c.Scheduler.ResetMinute < 0 || c.Scheduler.ResetMinute > 59 {
		errs = append(errs, fmt.Sprintf("SCHEDULER_RESET_MINUTE must be 0–59, got %d", c.Scheduler.ResetMinute))
	}
	if c.Scheduler.MaxAttempts < 1 {
		errs = append(errs, "SCHEDULER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Scheduler.RetryDelay < 0 {
		errs = append(errs, "SCHEDULER_RETRY_DELAY must not be negative")
	}
	if c.Scheduler.AlertThreshold < 1 {
		errs = append(errs, "SCHEDULER_ALERT_THRESHOLD must be at least 1")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty, quota audit events and alerts will only be logged")
	} else if c.NATS.EventsMaxAge <= 0 {
		errs = append(errs, "NATS_EVENTS_MAX_AGE must be positive")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
