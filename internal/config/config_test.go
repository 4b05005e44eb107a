package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudscale/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 50, cfg.Monitor.HistorySize)
	assert.Equal(t, models.Threshold{Warning: 70, Critical: 90}, cfg.Thresholds[models.AlertCPU])
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.Source.Kind)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
monitor:
  resource_id: web-1
  interval: 2s
thresholds:
  cpu:
    warning: 60
    critical: 80
source:
  kind: host
  host:
    disk_path: /data
sound:
  player: none
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "web-1", cfg.Monitor.ResourceID)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, models.Threshold{Warning: 60, Critical: 80}, cfg.Thresholds[models.AlertCPU])
	// untouched dimensions keep their defaults
	assert.Equal(t, models.Threshold{Warning: 85, Critical: 95}, cfg.Thresholds[models.AlertDisk])
	assert.Equal(t, "host", cfg.Source.Kind)
	assert.Equal(t, "/data", cfg.Source.Host.DiskPath)
	assert.Equal(t, "none", cfg.Sound.Player)
	// untouched sections keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "monitor:\n  resource_id: from-file\n")
	t.Setenv("CLOUDSCALE_RESOURCE_ID", "from-env")
	t.Setenv("CLOUDSCALE_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CLOUDSCALE_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Monitor.ResourceID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("CLOUDSCALE_INTERVAL", "soon")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"inverted threshold", func(c *Config) {
			c.Thresholds[models.AlertMemory] = models.Threshold{Warning: 95, Critical: 90}
		}},
		{"unknown source", func(c *Config) { c.Source.Kind = "carrier-pigeon" }},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }},
		{"bad id scheme", func(c *Config) { c.Monitor.IDScheme = "random" }},
		{"unknown player", func(c *Config) { c.Sound.Player = "speaker" }},
		{"ingest without brokers", func(c *Config) {
			c.Ingest.Enabled = true
			c.Kafka.Brokers = nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
