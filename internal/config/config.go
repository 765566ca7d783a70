// Package config loads the storefront configuration: defaults, then an
// optional YAML file, then .env and KOKTEK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete storefront configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Backend BackendConfig `yaml:"backend"`
	Webhook WebhookConfig `yaml:"webhook"`
	Store   StoreConfig   `yaml:"store"`
	Events  EventsConfig  `yaml:"events"`
	Log     LogConfig     `yaml:"log"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigin is sent as Access-Control-Allow-Origin.
	AllowedOrigin string `yaml:"allowed_origin"`
	// SessionTTL is how long an idle session is kept in memory.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// BackendConfig points at the headless CMS item API.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type WebhookConfig struct {
	// URL receives the cash notification; empty disables cash payment.
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects where per-session state (cart, profile, history) lives.
type StoreConfig struct {
	// Driver is memory, sqlite, postgres or redis.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Redis  struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	// TTL expires keys in stores that support it (redis).
	TTL time.Duration `yaml:"ttl"`
}

// EventsConfig selects the domain event broker.
type EventsConfig struct {
	// Driver is none, memory, kafka or nats.
	Driver  string   `yaml:"driver"`
	Brokers []string `yaml:"brokers"`
	NATSURL string   `yaml:"nats_url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Event drivers.
const (
	EventsNone   = "none"
	EventsMemory = "memory"
	EventsKafka  = "kafka"
	EventsNATS   = "nats"
)

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:          ":8080",
			AllowedOrigin: "*",
			SessionTTL:    24 * time.Hour,
		},
		Backend: BackendConfig{
			URL:     "http://localhost:8055",
			Timeout: 15 * time.Second,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: StoreSQLite,
			DSN:    "koktek.db",
			TTL:    30 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Driver:  EventsMemory,
			Brokers: []string{"localhost:9092"},
			NATSURL: "nats://localhost:4222",
		},
		Log: LogConfig{Level: "info"},
	}
	cfg.Store.Redis.Addr = "localhost:6379"
	return cfg
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration. path may be empty. A missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: .env not loaded", "error", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		fromFile, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fromFile
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTP.Addr = getEnv("KOKTEK_HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.AllowedOrigin = getEnv("KOKTEK_ALLOWED_ORIGIN", c.HTTP.AllowedOrigin)
	c.Backend.URL = getEnv("KOKTEK_BACKEND_URL", c.Backend.URL)
	c.Backend.Token = getEnv("KOKTEK_BACKEND_TOKEN", c.Backend.Token)
	c.Webhook.URL = getEnv("KOKTEK_WEBHOOK_URL", c.Webhook.URL)
	c.Store.Driver = getEnv("KOKTEK_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("KOKTEK_STORE_DSN", c.Store.DSN)
	c.Store.Redis.Addr = getEnv("KOKTEK_REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getEnv("KOKTEK_REDIS_PASSWORD", c.Store.Redis.Password)
	c.Events.Driver = getEnv("KOKTEK_EVENTS_DRIVER", c.Events.Driver)
	c.Events.NATSURL = getEnv("KOKTEK_NATS_URL", c.Events.NATSURL)
	c.Log.Level = getEnv("KOKTEK_LOG_LEVEL", c.Log.Level)
	if brokers := getEnv("KOKTEK_KAFKA_BROKERS", ""); brokers != "" {
		c.Events.Brokers = splitList(brokers)
	}

	var err error
	if c.Store.Redis.DB, err = getEnvInt("KOKTEK_REDIS_DB", c.Store.Redis.DB); err != nil {
		return err
	}
	for key, d := range map[string]*time.Duration{
		"KOKTEK_BACKEND_TIMEOUT": &c.Backend.Timeout,
		"KOKTEK_WEBHOOK_TIMEOUT": &c.Webhook.Timeout,
		"KOKTEK_SESSION_TTL":     &c.HTTP.SessionTTL,
	} {
		if *d, err = getEnvDuration(key, *d); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Events.Driver {
	case EventsNone, EventsMemory:
	case EventsKafka:
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("events.brokers is required for kafka")
		}
	case EventsNATS:
		if c.Events.NATSURL == "" {
			return fmt.Errorf("events.nats_url is required for nats")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
