package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cloudscale/internal/alerts"
	"cloudscale/internal/models"
)

// Config holds runtime configuration for the monitor.
type Config struct {
	Server     ServerConfig                          `yaml:"server"`
	Monitor    MonitorConfig                         `yaml:"monitor"`
	Thresholds map[models.AlertType]models.Threshold `yaml:"thresholds"`
	Source     SourceConfig                          `yaml:"source"`
	Sound      SoundConfig                           `yaml:"sound"`
	Kafka      KafkaConfig                           `yaml:"kafka"`
	Ingest     IngestConfig                          `yaml:"ingest"`
	Log        LogConfig                             `yaml:"log"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	AuthToken    string        `yaml:"auth_token"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// MonitorConfig configures the poll loop and alert history.
type MonitorConfig struct {
	ResourceID  string        `yaml:"resource_id"`
	Interval    time.Duration `yaml:"interval"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
	HistorySize int           `yaml:"history_size"`
	// IDScheme is "counter" or "uuid"
	IDScheme string `yaml:"id_scheme"`
}

// SourceConfig selects where metrics samples come from.
type SourceConfig struct {
	// Kind is one of api, host, prometheus, kafka
	Kind       string           `yaml:"kind"`
	API        APIConfig        `yaml:"api"`
	Host       HostConfig       `yaml:"host"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// APIConfig points at the remote monitoring API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// HostConfig configures the local host sampler.
type HostConfig struct {
	DiskPath     string        `yaml:"disk_path"`
	CPUSampleFor time.Duration `yaml:"cpu_sample_for"`
}

// PrometheusConfig holds the PromQL queries for each dimension.
type PrometheusConfig struct {
	URL         string `yaml:"url"`
	CPUQuery    string `yaml:"cpu_query"`
	MemoryQuery string `yaml:"memory_query"`
	DiskQuery   string `yaml:"disk_query"`
}

// SoundConfig selects the sound cue player.
type SoundConfig struct {
	// Player is one of command, log, none
	Player       string `yaml:"player"`
	Command      string `yaml:"command"`
	WarningFile  string `yaml:"warning_file"`
	CriticalFile string `yaml:"critical_file"`
}

// KafkaConfig holds Kafka settings shared by the ingest producer and the kafka source.
type KafkaConfig struct {
	Brokers  []string       `yaml:"brokers"`
	Topic    string         `yaml:"topic"`
	GroupID  string         `yaml:"group_id"`
	Producer ProducerConfig `yaml:"producer"`
}

// ProducerConfig tunes the pooled Kafka producer.
type ProducerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	Compression  string        `yaml:"compression"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// IngestConfig configures the metrics ingest endpoint.
type IngestConfig struct {
	Enabled     bool  `yaml:"enabled"`
	MaxBodySize int64 `yaml:"max_body_size"`
	QueueSize   int   `yaml:"queue_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Monitor: MonitorConfig{
			ResourceID:  "test-server-1",
			Interval:    5 * time.Second,
			PollTimeout: 4 * time.Second,
			HistorySize: alerts.DefaultHistorySize,
			IDScheme:    "counter",
		},
		Thresholds: alerts.DefaultThresholds(),
		Source: SourceConfig{
			Kind: "api",
			API: APIConfig{
				BaseURL: "http://localhost:8000/api/v1/monitoring",
				Timeout: 3 * time.Second,
			},
			Host: HostConfig{
				DiskPath:     "/",
				CPUSampleFor: time.Second,
			},
			Prometheus: PrometheusConfig{
				URL:         "http://localhost:9090",
				CPUQuery:    `100 - avg(rate(node_cpu_seconds_total{mode="idle"}[1m])) * 100`,
				MemoryQuery: `(1 - node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes) * 100`,
				DiskQuery:   `(1 - node_filesystem_avail_bytes{mountpoint="/"} / node_filesystem_size_bytes{mountpoint="/"}) * 100`,
			},
		},
		Sound: SoundConfig{
			Player:       "log",
			Command:      "paplay",
			WarningFile:  "/usr/share/cloudscale/warning-alert.wav",
			CriticalFile: "/usr/share/cloudscale/critical-alert.wav",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "cloudscale.metrics",
			GroupID: "cloudscale-monitor",
			Producer: ProducerConfig{
				PoolSize:     4,
				BatchSize:    100,
				BatchTimeout: 100 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: 1,
				Compression:  "snappy",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
		},
		Ingest: IngestConfig{
			Enabled:     false,
			MaxBodySize: 1 << 20,
			QueueSize:   1000,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration with priority: defaults < yaml file < env vars.
// An empty path skips the file; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from CLOUDSCALE_* variables.
func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "CLOUDSCALE_ADDR")
	setString(&c.Server.AuthToken, "CLOUDSCALE_AUTH_TOKEN")
	setString(&c.Monitor.ResourceID, "CLOUDSCALE_RESOURCE_ID")
	setString(&c.Monitor.IDScheme, "CLOUDSCALE_ID_SCHEME")
	setString(&c.Source.Kind, "CLOUDSCALE_SOURCE")
	setString(&c.Source.API.BaseURL, "CLOUDSCALE_API_URL")
	setString(&c.Source.API.Token, "CLOUDSCALE_API_TOKEN")
	setString(&c.Source.Prometheus.URL, "CLOUDSCALE_PROMETHEUS_URL")
	setString(&c.Sound.Player, "CLOUDSCALE_SOUND_PLAYER")
	setString(&c.Kafka.Topic, "CLOUDSCALE_KAFKA_TOPIC")
	setString(&c.Log.Level, "CLOUDSCALE_LOG_LEVEL")

	if v := os.Getenv("CLOUDSCALE_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}

	if v := os.Getenv("CLOUDSCALE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CLOUDSCALE_INTERVAL: %w", err)
		}
		c.Monitor.Interval = d
	}

	if v := os.Getenv("CLOUDSCALE_INGEST_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CLOUDSCALE_INGEST_ENABLED: %w", err)
		}
		c.Ingest.Enabled = b
	}
	return nil
}

// Validate checks the config for values the monitor cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Monitor.ResourceID == "" {
		errs = append(errs, errors.New("monitor.resource_id is required"))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.HistorySize <= 0 {
		errs = append(errs, errors.New("monitor.history_size must be positive"))
	}
	switch c.Monitor.IDScheme {
	case "counter", "uuid":
	default:
		errs = append(errs, fmt.Errorf("monitor.id_scheme %q is not counter or uuid", c.Monitor.IDScheme))
	}

	if err := alerts.Thresholds(c.Thresholds).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}

	switch c.Source.Kind {
	case "api":
		if c.Source.API.BaseURL == "" {
			errs = append(errs, errors.New("source.api.base_url is required"))
		}
	case "host":
	case "prometheus":
		if c.Source.Prometheus.URL == "" {
			errs = append(errs, errors.New("source.prometheus.url is required"))
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka source needs kafka.brokers and kafka.topic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.kind %q", c.Source.Kind))
	}

	switch c.Sound.Player {
	case "command":
		if c.Sound.Command == "" {
			errs = append(errs, errors.New("sound.command is required for the command player"))
		}
	case "log", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown sound.player %q", c.Sound.Player))
	}

	if c.Ingest.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, errors.New("ingest needs kafka.brokers and kafka.topic"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
