// Package app wires the service's long-lived components together.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stt-relay-service/internal/auth"
	"stt-relay-service/internal/config"
	"stt-relay-service/internal/events"
	"stt-relay-service/internal/observability/logging"
	"stt-relay-service/internal/service/poller"
	"stt-relay-service/internal/store"
	"stt-relay-service/internal/transcribe"
	"stt-relay-service/internal/transcribe/aws"
	"stt-relay-service/internal/transcribe/mock"
)

// AdapterFactory creates one unstarted transcription adapter per session.
// Empty language or region fall back to the configured defaults.
type AdapterFactory func(language, region string) transcribe.Adapter

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	mu      sync.Mutex
	running bool

	Store       store.Store
	Publisher   *events.Publisher
	Poller      *poller.Poller
	Credentials *auth.Provider
	NewAdapter  AdapterFactory
}

// New constructs an Application from the provided configuration: logger,
// credential provider, transcript store, final-segment publisher, monitor
// poller and the per-session adapter factory.
func New(cfg *config.Config) (*Application, error) {
	a := &Application{Cfg: cfg}
	a.setupLogger()

	a.Credentials = auth.NewProvider(auth.Credentials{
		AccessKeyId:     cfg.AWS.AccessKeyId,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
	}, cfg.AWS.RoleArn, cfg.AWS.Region)

	st, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st

	a.Publisher = events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	})

	a.Poller = poller.New(st, time.Duration(cfg.Poller.IntervalSeconds)*time.Second)
	a.NewAdapter = a.adapterFactory()

	a.Logger.Info().
		Str("provider", cfg.Transcribe.Provider).
		Str("store", cfg.Store.Driver).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Msg("STT relay application created")
	return a, nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.TableName)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (a *Application) adapterFactory() AdapterFactory {
	if a.Cfg.Transcribe.Provider == "mock" {
		return func(string, string) transcribe.Adapter { return mock.New() }
	}
	cfg := a.Cfg
	return func(language, region string) transcribe.Adapter {
		if language == "" {
			language = cfg.Transcribe.LanguageCode
		}
		if region == "" {
			region = cfg.AWS.Region
		}
		return aws.New(aws.Config{
			Credentials:          a.Credentials,
			Region:               region,
			LanguageCode:         language,
			SampleRateHz:         cfg.Transcribe.SampleRateHz,
			PresignExpirySeconds: cfg.Transcribe.PresignExpirySeconds,
			PartialStability:     cfg.Transcribe.PartialStability,
			QueueSize:            cfg.Relay.AudioQueueSize,
		})
	}
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	a.Logger = logging.Init(logging.Config{
		Level:  strings.ToLower(a.Cfg.Observability.LogLevel),
		Format: a.Cfg.Observability.LogFormat,
	})
	a.Logger.Info().
		Str("logLevel", a.Cfg.Observability.LogLevel).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("STT relay service starting")
	return nil
}

// Ready reports whether the service is accepting new sessions. It flips true
// when Start completes and false again once Shutdown begins, which backs the
// readiness probe on the metrics port.
func (a *Application) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	a.Logger.Info().Msg("STT relay service shutting down")
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close publisher")
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
