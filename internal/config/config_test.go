package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"PORT", "METRICS_PORT",
		"AWS_DEFAULT_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"AWS_SESSION_TOKEN", "TRANSCRIBESTREAM_CLIENT_ROLEARN",
		"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
		"PRESIGN_EXPIRES_SECONDS", "STT_PARTIAL_STABILITY",
		"IDLE_TIMEOUT", "CONNECT_TIMEOUT", "AUDIO_QUEUE_SIZE",
		"STORE_DRIVER", "DATABASE_URL", "TRANSCRIPTS_TABLENAME",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_FINAL", "SERVICE_PRINCIPAL",
		"POLL_INTERVAL_SECONDS", "LOG_LEVEL", "LOG_FORMAT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Service.Port != "3131" {
		t.Errorf("expected default port '3131', got %s", cfg.Service.Port)
	}
	if cfg.AWS.Region != "us-east-1" {
		t.Errorf("expected default region 'us-east-1', got %s", cfg.AWS.Region)
	}
	if cfg.Transcribe.Provider != "aws" {
		t.Errorf("expected default provider 'aws', got %s", cfg.Transcribe.Provider)
	}
	if cfg.Transcribe.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.Transcribe.LanguageCode)
	}
	if cfg.Transcribe.SampleRateHz != 16000 {
		t.Errorf("expected default upstream sample rate 16000, got %d", cfg.Transcribe.SampleRateHz)
	}
	if cfg.Transcribe.PresignExpirySeconds != 15 {
		t.Errorf("expected default presign expiry 15s, got %d", cfg.Transcribe.PresignExpirySeconds)
	}
	if cfg.Relay.IdleTimeout != 30*time.Second {
		t.Errorf("expected default idle timeout 30s, got %v", cfg.Relay.IdleTimeout)
	}
	if cfg.Relay.ConnectTimeout != 10*time.Second {
		t.Errorf("expected default connect timeout 10s, got %v", cfg.Relay.ConnectTimeout)
	}
	if cfg.Relay.AudioQueueSize != 64 {
		t.Errorf("expected default audio queue size 64, got %d", cfg.Relay.AudioQueueSize)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("expected default store driver 'memory', got %s", cfg.Store.Driver)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected kafka disabled by default")
	}
	if cfg.Poller.IntervalSeconds != 10 {
		t.Errorf("expected default poll interval 10, got %d", cfg.Poller.IntervalSeconds)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("AWS_DEFAULT_REGION", "ca-central-1")
	t.Setenv("TRANSCRIBESTREAM_CLIENT_ROLEARN", "arn:aws:iam::123456789012:role/stream")
	t.Setenv("STT_LANGUAGE_CODE", "fr-CA")
	t.Setenv("IDLE_TIMEOUT", "45s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/transcripts")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Service.Port != "8080" {
		t.Errorf("expected port '8080', got %s", cfg.Service.Port)
	}
	if cfg.AWS.Region != "ca-central-1" {
		t.Errorf("expected region 'ca-central-1', got %s", cfg.AWS.Region)
	}
	if cfg.AWS.RoleArn != "arn:aws:iam::123456789012:role/stream" {
		t.Errorf("unexpected role arn %s", cfg.AWS.RoleArn)
	}
	if cfg.Transcribe.LanguageCode != "fr-CA" {
		t.Errorf("expected language 'fr-CA', got %s", cfg.Transcribe.LanguageCode)
	}
	if cfg.Relay.IdleTimeout != 45*time.Second {
		t.Errorf("expected idle timeout 45s, got %v", cfg.Relay.IdleTimeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("expected store driver 'postgres', got %s", cfg.Store.Driver)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"unknown store driver", map[string]string{"STORE_DRIVER": "dynamo"}},
		{"kafka without brokers", map[string]string{"KAFKA_ENABLED": "true"}},
		{"bad sample rate", map[string]string{"STT_SAMPLE_RATE_HZ": "-1"}},
		{"unknown provider", map[string]string{"STT_PROVIDER": "whisper"}},
		{"bad poll interval", map[string]string{"POLL_INTERVAL_SECONDS": "0"}},
		{"bad presign expiry", map[string]string{"PRESIGN_EXPIRES_SECONDS": "0"}},
		{"bad queue size", map[string]string{"AUDIO_QUEUE_SIZE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
