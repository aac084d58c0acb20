// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stt_relay"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Relay session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsFailed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio path metrics
	AudioBytesForwarded  prometheus.Counter
	AudioFramesForwarded prometheus.Counter
	AudioFramesDropped   prometheus.Counter

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	FramingErrors      prometheus.Counter

	// Queue publish metrics
	QueuePublishTotal   prometheus.Counter
	QueuePublishErrors  prometheus.Counter
	QueuePublishLatency prometheus.Histogram

	// Store metrics
	PersistTotal  prometheus.Counter
	PersistErrors prometheus.Counter

	// Poller metrics
	MonitorsActive prometheus.Gauge
	PollTicks      prometheus.Counter
	PollErrors     prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of relay sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active relay sessions",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions terminated by a fatal error",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of relay sessions in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),

		AudioBytesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_forwarded_total",
			Help:      "Total PCM bytes forwarded upstream",
		}),
		AudioFramesForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_forwarded_total",
			Help:      "Total audio frames forwarded upstream",
		}),
		AudioFramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total audio frames dropped by backpressure",
		}),

		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcript results received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcript results received",
		}),
		FramingErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "framing_errors_total",
			Help:      "Total number of malformed upstream frames dropped",
		}),

		QueuePublishTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_publish_total",
			Help:      "Total number of finalized segments published to the queue",
		}),
		QueuePublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_publish_errors_total",
			Help:      "Total number of queue publish errors",
		}),
		QueuePublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_publish_latency_seconds",
			Help:      "Queue publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		PersistTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Total number of segment writes to the result store",
		}),
		PersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Total number of failed segment writes",
		}),

		MonitorsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitors_active",
			Help:      "Number of currently connected monitor sockets",
		}),
		PollTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Total number of poller ticks executed",
		}),
		PollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Total number of poll ticks that failed and emitted empty",
		}),
	}
}

// RecordSessionStart records a new relay session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a relay session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed records a session terminated by a fatal error.
func (m *Metrics) RecordSessionFailed(reason string) {
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordAudioForwarded records one forwarded audio frame.
func (m *Metrics) RecordAudioForwarded(bytes int) {
	m.AudioBytesForwarded.Add(float64(bytes))
	m.AudioFramesForwarded.Inc()
}

// RecordAudioDropped records a frame dropped by backpressure.
func (m *Metrics) RecordAudioDropped() {
	m.AudioFramesDropped.Inc()
}

// RecordTranscript records a received transcript result.
func (m *Metrics) RecordTranscript(isPartial bool) {
	if isPartial {
		m.TranscriptsPartial.Inc()
	} else {
		m.TranscriptsFinal.Inc()
	}
}

// RecordFramingError records a dropped malformed frame.
func (m *Metrics) RecordFramingError() {
	m.FramingErrors.Inc()
}

// RecordQueuePublish records a queue publish attempt.
func (m *Metrics) RecordQueuePublish(err error, latencySeconds float64) {
	m.QueuePublishTotal.Inc()
	m.QueuePublishLatency.Observe(latencySeconds)
	if err != nil {
		m.QueuePublishErrors.Inc()
	}
}

// RecordPersist records a store write attempt.
func (m *Metrics) RecordPersist(err error) {
	m.PersistTotal.Inc()
	if err != nil {
		m.PersistErrors.Inc()
	}
}

// RecordMonitorConnect records a monitor socket connecting.
func (m *Metrics) RecordMonitorConnect() {
	m.MonitorsActive.Inc()
}

// RecordMonitorDisconnect records a monitor socket closing.
func (m *Metrics) RecordMonitorDisconnect() {
	m.MonitorsActive.Dec()
}

// RecordPollTick records one poll tick, failed or not.
func (m *Metrics) RecordPollTick(err error) {
	m.PollTicks.Inc()
	if err != nil {
		m.PollErrors.Inc()
	}
}
