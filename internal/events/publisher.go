// Package events publishes finalized transcript segments to a queue for
// downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"stt-relay-service/internal/models"
	"stt-relay-service/internal/observability/metrics"
)

// ErrPublish indicates a failed queue publish. Publishing is fire-and-forget:
// the relay logs the error and keeps processing audio.
var ErrPublish = errors.New("publish error")

// Publisher writes finalized segments to a Kafka topic. Partial segments are
// never published.
type Publisher struct {
	writer    *kafka.Writer
	principal string
	topic     string
	enabled   bool
	metrics   *metrics.Metrics
}

// Config holds queue publisher configuration.
type Config struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// New creates a queue publisher. With publishing disabled or no brokers
// configured it runs in log-only mode.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Queue publishing disabled, using log-only mode")
		p := &Publisher{enabled: false, metrics: m}
		if cfg != nil {
			p.principal = cfg.Principal
			p.topic = cfg.Topic
		}
		return p
	}

	// Longer dial timeouts for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Queue publisher initialized")

	return &Publisher{
		writer:    writer,
		principal: cfg.Principal,
		topic:     cfg.Topic,
		enabled:   true,
		metrics:   m,
	}
}

// PublishFinal publishes one finalized segment keyed by its call identifier.
func (p *Publisher) PublishFinal(ctx context.Context, seg models.Segment) error {
	start := time.Now()

	payload, err := json.Marshal(seg)
	if err != nil {
		log.Error().Err(err).Str("callId", seg.CallId).Msg("Failed to marshal segment")
		return fmt.Errorf("%w: encoding segment: %v", ErrPublish, err)
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", p.topic).
		Str("callId", seg.CallId).
		Str("resultId", seg.ResultId).
		RawJSON("payload", payload).
		Msg("Publishing finalized segment")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordQueuePublish(nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(seg.CallId),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("transcript.final")},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("callId", seg.CallId).
			Msg("Failed to write to queue")
		p.metrics.RecordQueuePublish(err, time.Since(start).Seconds())
		return fmt.Errorf("%w: writing to topic %s: %v", ErrPublish, p.topic, err)
	}

	p.metrics.RecordQueuePublish(nil, time.Since(start).Seconds())
	return nil
}

// Close closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing queue writer")
		return err
	}
	return nil
}
