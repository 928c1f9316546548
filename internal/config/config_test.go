package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "clipforge.db", cfg.Database.DSN)
	assert.Equal(t, "render-jobs", cfg.Queue.QueueName)
	assert.Empty(t, cfg.Queue.URL)
	assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Worker.DownloadTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Worker.StaleJobAge)
	assert.Equal(t, time.Hour, cfg.Storage.PresignTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg := defaultConfig(t)
		cfg.Storage.Bucket = "renders"
		return cfg
	}

	require.NoError(t, valid(t).Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }, "storage.bucket"},
		{"poll interval too short", func(c *Config) { c.Worker.PollInterval = 100 * time.Millisecond }, "worker.poll_interval"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CLIPFORGE_STORAGE_BUCKET", "env-bucket")
	t.Setenv("CLIPFORGE_SERVER_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestServerAddress(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8090}
	assert.Equal(t, "127.0.0.1:8090", cfg.Address())
}
