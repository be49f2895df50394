package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Admin     AdminConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Quota     QuotaConfig
	Scheduler SchedulerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig is optional; an empty URL disables audit events and alert publishing.
type NATSConfig struct {
	URL          string
	EventsMaxAge time.Duration
}

type JWTConfig struct {
	AccessSecret string
}

// AdminConfig holds the bcrypt hash of the key accepted in X-Admin-Key.
type AdminConfig struct {
	APIKeyHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	AdminMaxRequests int
	AdminWindowSec   int
}

// Store backends for quota records.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type QuotaConfig struct {
	MaxUnits     int
	Timezone     string
	StoreTimeout time.Duration
	Store        string
}

// Location resolves the reference timezone. Validate guarantees it loads.
func (c QuotaConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type SchedulerConfig struct {
	Enabled        bool
	ResetHour      int
	ResetMinute    int
	MaxAttempts    int
	RetryDelay     time.Duration
	AlertThreshold int
	LockTTL        time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
		},
		Admin: AdminConfig{
			APIKeyHash: k.String("admin.api.key.hash"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		RateLimit: RateLimitConfig{
			AdminMaxRequests: k.Int("ratelimit.admin.max.requests"),
			AdminWindowSec:   k.Int("ratelimit.admin.window.sec"),
		},
		Quota: QuotaConfig{
			MaxUnits: k.Int("quota.max.units"),
			Timezone: k.String("quota.timezone"),
			Store:    strings.ToLower(k.String("quota.store")),
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			ResetHour:      1,
			MaxAttempts:    k.Int("scheduler.max.attempts"),
			AlertThreshold: k.Int("scheduler.alert.threshold"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
			File:   k.String("log.file"),
		},
	}

	if k.Exists("scheduler.enabled") {
		cfg.Scheduler.Enabled = k.Bool("scheduler.enabled")
	}
	// Hour and minute may legitimately be zero, so only override when set.
	if k.Exists("scheduler.reset.hour") {
		cfg.Scheduler.ResetHour = k.Int("scheduler.reset.hour")
	}
	if k.Exists("scheduler.reset.minute") {
		cfg.Scheduler.ResetMinute = k.Int("scheduler.reset.minute")
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "lingoloop"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "lingoloop"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.RateLimit.AdminMaxRequests == 0 {
		cfg.RateLimit.AdminMaxRequests = 30
	}
	if cfg.RateLimit.AdminWindowSec == 0 {
		cfg.RateLimit.AdminWindowSec = 60
	}
	if cfg.Quota.MaxUnits == 0 {
		cfg.Quota.MaxUnits = 5
	}
	if cfg.Quota.Timezone == "" {
		cfg.Quota.Timezone = "UTC"
	}
	if cfg.Quota.Store == "" {
		cfg.Quota.Store = StorePostgres
	}
	if cfg.Scheduler.MaxAttempts == 0 {
		cfg.Scheduler.MaxAttempts = 3
	}
	if cfg.Scheduler.AlertThreshold == 0 {
		cfg.Scheduler.AlertThreshold = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations. The timeout key must not sit under quota.store, which
	// is itself a leaf.
	if cfg.Quota.StoreTimeout, err = parseDuration(k, "quota.op.timeout", "5s"); err != nil {
		return nil, err
	}
	if cfg.NATS.EventsMaxAge, err = parseDuration(k, "nats.events.max.age", "168h"); err != nil {
		return nil, err
	}
	if cfg.Scheduler.RetryDelay, err = parseDuration(k, "scheduler.retry.delay", "5s"); err != nil {
		return nil, err
	}
	if cfg.Scheduler.LockTTL, err = parseDuration(k, "scheduler.lock.ttl", "10m"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, def string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
