package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, 4, cfg.WorkQueue.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, "reminders.v1", cfg.Scheduler.ReminderStream)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: "9090"
work_queue:
  workers: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.HTTPPort)
	assert.Equal(t, 8, cfg.WorkQueue.Workers)
	// Untouched sections keep defaults.
	assert.Equal(t, "work.queue.v1", cfg.WorkQueue.Stream)
	assert.Equal(t, 4, cfg.FanOut.Workers)
}

func TestLoadEnvOverridesPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "7777")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.HTTPPort)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, mapping"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.WorkQueue.Workers = 0 },
			errMsg: "work_queue.workers",
		},
		{
			name:   "zero batch",
			mutate: func(c *Config) { c.Scheduler.BatchSize = 0 },
			errMsg: "scheduler.batch_size",
		},
		{
			name:   "inverted content thresholds",
			mutate: func(c *Config) { c.ContentRules.ManualReviewMin = 10 },
			errMsg: "content_routing thresholds",
		},
		{
			name:   "zero poll interval",
			mutate: func(c *Config) { c.Monitor.PollInterval = 0 },
			errMsg: "poll intervals",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Defaults().Validate())
	})
}
