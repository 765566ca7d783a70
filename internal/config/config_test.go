package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, EventsMemory, cfg.Events.Driver)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "missing backend url", modify: func(c *Config) { c.Backend.URL = "" }, wantErr: true},
		{name: "zero timeout", modify: func(c *Config) { c.Backend.Timeout = 0 }, wantErr: true},
		{name: "unknown store", modify: func(c *Config) { c.Store.Driver = "etcd" }, wantErr: true},
		{name: "sqlite without dsn", modify: func(c *Config) { c.Store.DSN = "" }, wantErr: true},
		{name: "memory store without dsn", modify: func(c *Config) { c.Store.Driver, c.Store.DSN = StoreMemory, "" }},
		{name: "redis without addr", modify: func(c *Config) { c.Store.Driver, c.Store.Redis.Addr = StoreRedis, "" }, wantErr: true},
		{name: "kafka without brokers", modify: func(c *Config) { c.Events.Driver, c.Events.Brokers = EventsKafka, nil }, wantErr: true},
		{name: "nats", modify: func(c *Config) { c.Events.Driver = EventsNATS }},
		{name: "unknown events", modify: func(c *Config) { c.Events.Driver = "sqs" }, wantErr: true},
		{name: "bad log level", modify: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "koktek.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  url: https://cms.example.com
  timeout: 5s
store:
  driver: redis
  redis:
    addr: cache:6379
events:
  driver: kafka
  brokers: [k1:9092]
log:
  level: debug
`), 0o644))

	t.Setenv("KOKTEK_BACKEND_TOKEN", "secret")
	t.Setenv("KOKTEK_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KOKTEK_REDIS_DB", "2")
	t.Setenv("KOKTEK_WEBHOOK_TIMEOUT", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://cms.example.com", cfg.Backend.URL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr, "unset fields keep defaults")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("KOKTEK_REDIS_DB", "two")
	_, err = Load("")
	assert.ErrorContains(t, err, "KOKTEK_REDIS_DB")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}
