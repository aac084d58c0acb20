// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration. Every option has a default; only
// deployments that assume a role or persist to Postgres need extra settings.
type Config struct {
	Service       ServiceConfig
	AWS           AWSConfig
	Transcribe    TranscribeConfig
	Relay         RelayConfig
	Store         StoreConfig
	Kafka         KafkaConfig
	Poller        PollerConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener settings.
type ServiceConfig struct {
	Port        string `env:"PORT" envDefault:"3131"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
}

// AWSConfig holds credential material and the target region.
type AWSConfig struct {
	Region          string `env:"AWS_DEFAULT_REGION" envDefault:"us-east-1"`
	AccessKeyId     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string `env:"AWS_SESSION_TOKEN"`
	RoleArn         string `env:"TRANSCRIBESTREAM_CLIENT_ROLEARN"`
}

// TranscribeConfig holds upstream endpoint settings.
type TranscribeConfig struct {
	Provider             string `env:"STT_PROVIDER" envDefault:"aws"`
	LanguageCode         string `env:"STT_LANGUAGE_CODE" envDefault:"en-US"`
	SampleRateHz         int    `env:"STT_SAMPLE_RATE_HZ" envDefault:"16000"`
	PresignExpirySeconds int    `env:"PRESIGN_EXPIRES_SECONDS" envDefault:"15"`
	PartialStability     string `env:"STT_PARTIAL_STABILITY" envDefault:"medium"`
}

// RelayConfig holds per-session lifecycle settings.
type RelayConfig struct {
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"30s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	AudioQueueSize int           `env:"AUDIO_QUEUE_SIZE" envDefault:"64"`
}

// StoreConfig selects and configures the transcript store.
type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	TableName   string `env:"TRANSCRIPTS_TABLENAME" envDefault:"transcripts"`
}

// KafkaConfig configures the finalized-segment publisher.
type KafkaConfig struct {
	Enabled   bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic     string   `env:"KAFKA_TOPIC_FINAL" envDefault:"stt.transcripts.final"`
	Principal string   `env:"SERVICE_PRINCIPAL" envDefault:"svc-stt-relay"`
}

// PollerConfig holds monitor polling settings.
type PollerConfig struct {
	IntervalSeconds int `env:"POLL_INTERVAL_SECONDS" envDefault:"10"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Transcribe.Provider {
	case "aws", "mock":
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.Transcribe.Provider)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.Transcribe.SampleRateHz <= 0 {
		return fmt.Errorf("STT_SAMPLE_RATE_HZ must be positive, got %d", c.Transcribe.SampleRateHz)
	}
	if c.Transcribe.PresignExpirySeconds <= 0 {
		return fmt.Errorf("PRESIGN_EXPIRES_SECONDS must be positive, got %d", c.Transcribe.PresignExpirySeconds)
	}
	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.Poller.IntervalSeconds)
	}
	if c.Relay.AudioQueueSize <= 0 {
		return fmt.Errorf("AUDIO_QUEUE_SIZE must be positive, got %d", c.Relay.AudioQueueSize)
	}
	return nil
}
