package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stt-relay-service/internal/audio"
	"stt-relay-service/internal/events"
	"stt-relay-service/internal/models"
	"stt-relay-service/internal/observability/logging"
	"stt-relay-service/internal/observability/metrics"
	"stt-relay-service/internal/store"
	"stt-relay-service/internal/transcribe"
)

// Config holds the per-session settings.
type Config struct {
	CallId      string
	CallerId    string
	SpeakerName string

	// InputSampleRateHz is the rate of the audio arriving from the caller.
	InputSampleRateHz int
	// TargetSampleRateHz is the rate the upstream service expects.
	TargetSampleRateHz int

	// IdleTimeout closes the session when no audio arrives for this long.
	IdleTimeout time.Duration
	// ConnectTimeout bounds the upstream connection attempt.
	ConnectTimeout time.Duration

	EmitterBuffer int
}

func (c *Config) applyDefaults() {
	if c.TargetSampleRateHz == 0 {
		c.TargetSampleRateHz = 16000
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Session relays one caller's audio to the transcription service and fans the
// results back out. It implements transcribe.Callback; result handling runs on
// the adapter's delivery goroutine and stays ordered through the emitter.
type Session struct {
	cfg       Config
	adapter   transcribe.Adapter
	store     store.Store
	publisher *events.Publisher
	lifecycle *Lifecycle
	emitter   *Emitter
	metrics   *metrics.Metrics
	log       zerolog.Logger

	mu        sync.Mutex
	idleTimer *time.Timer
	startedAt time.Time
	onClose   func()

	closed chan struct{}
}

// NewSession creates a session in CONNECTING state. The adapter must be
// unstarted; Session owns its lifecycle from here on.
func NewSession(cfg Config, adapter transcribe.Adapter, st store.Store, pub *events.Publisher) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:       cfg,
		adapter:   adapter,
		store:     st,
		publisher: pub,
		lifecycle: NewLifecycle(),
		emitter:   NewEmitter(cfg.EmitterBuffer),
		metrics:   metrics.DefaultMetrics,
		log:       logging.WithCall(cfg.CallId, cfg.SpeakerName),
		closed:    make(chan struct{}),
	}
}

// OnMessage registers a listener for partial and final segments.
func (s *Session) OnMessage(fn MessageListener) { s.emitter.OnMessage(fn) }

// OnSessionError registers a listener for session errors.
func (s *Session) OnSessionError(fn ErrorListener) { s.emitter.OnError(fn) }

// SetOnClose registers a hook invoked once when teardown completes.
func (s *Session) SetOnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.lifecycle.State() }

// Done is closed when the session is fully torn down.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Start opens the upstream session. On failure the session is unusable and
// already closed; callers do not need a separate teardown path.
func (s *Session) Start(ctx context.Context) error {
	s.metrics.RecordSessionStart()
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	if err := s.adapter.Start(dialCtx, s); err != nil {
		s.metrics.RecordSessionFailed("connect")
		s.lifecycle.MarkClosed()
		s.emitter.Close()
		close(s.closed)
		return err
	}

	if err := s.lifecycle.MarkStreaming(); err != nil {
		return err
	}
	s.mu.Lock()
	s.idleTimer = time.AfterFunc(s.cfg.IdleTimeout, s.idleClose)
	s.mu.Unlock()

	s.log.Info().
		Int("inputRate", s.cfg.InputSampleRateHz).
		Int("targetRate", s.cfg.TargetSampleRateHz).
		Msg("Relay session streaming")
	return nil
}

// ForwardAudio accepts one inbound frame of little-endian float32 samples at
// the caller's rate, converts it to 16-bit PCM at the target rate and sends it
// upstream. Arrival of audio resets the idle timer.
func (s *Session) ForwardAudio(ctx context.Context, frame []byte) error {
	if !s.lifecycle.CanForwardAudio() {
		return fmt.Errorf("%w: state=%s", ErrNotStreaming, s.lifecycle.State())
	}
	s.touch()

	samples := audio.DecodeFloat32(frame)
	if len(samples) == 0 {
		return nil
	}
	resampled := audio.Downsample(samples, s.cfg.InputSampleRateHz, s.cfg.TargetSampleRateHz)
	pcm := audio.PCMEncode(resampled)

	if err := s.adapter.SendAudio(ctx, pcm); err != nil {
		if errors.Is(err, transcribe.ErrUpstreamConnection) {
			s.emitter.EmitError(err)
			go s.Close()
		}
		return err
	}
	return nil
}

// Close tears the session down: upstream adapter first, then the emitter once
// in-flight results have drained. Idempotent; every exit path converges here.
func (s *Session) Close() error {
	if !s.lifecycle.BeginClose() {
		return nil
	}

	s.mu.Lock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	startedAt := s.startedAt
	onClose := s.onClose
	s.mu.Unlock()

	err := s.adapter.Close()
	s.emitter.Close()
	s.lifecycle.MarkClosed()
	close(s.closed)

	if !startedAt.IsZero() {
		s.metrics.RecordSessionEnd(time.Since(startedAt).Seconds())
	}
	s.log.Info().Msg("Relay session closed")

	if onClose != nil {
		onClose()
	}
	return err
}

// OnTranscriptEvent fans one upstream event out: every result reaches the
// message listeners; final results are additionally persisted and published.
// Persistence and publish failures degrade the session, they do not end it.
func (s *Session) OnTranscriptEvent(ev models.TranscribeEvent) {
	now := time.Now()
	for _, r := range ev.Transcript.Results {
		seg := models.NewSegment(s.cfg.CallId, s.cfg.SpeakerName, r, now)
		seg.CallerId = s.cfg.CallerId
		s.metrics.RecordTranscript(r.IsPartial)
		s.emitter.EmitSegment(seg)

		if r.IsPartial {
			continue
		}
		s.handleFinal(seg)
	}
}

// OnError routes an upstream error to the error listeners. Connection-level
// errors end the session; per-message framing errors do not.
func (s *Session) OnError(err error) {
	s.emitter.EmitError(err)
	if errors.Is(err, transcribe.ErrUpstreamConnection) {
		s.log.Warn().Err(err).Msg("Upstream connection lost, closing session")
		// Teardown must not run on the adapter's delivery goroutine: Close
		// waits for that goroutine to exit.
		go s.Close()
	}
}

func (s *Session) handleFinal(seg models.Segment) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.store != nil {
		err := s.store.Persist(ctx, seg)
		s.metrics.RecordPersist(err)
		if err != nil {
			s.log.Error().Err(err).
				Str("resultId", seg.ResultId).
				Msg("Failed to persist final segment")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishFinal(ctx, seg); err != nil {
			s.log.Error().Err(err).
				Str("resultId", seg.ResultId).
				Msg("Failed to publish final segment")
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Reset(s.cfg.IdleTimeout)
	}
}

func (s *Session) idleClose() {
	s.log.Info().Dur("idleTimeout", s.cfg.IdleTimeout).Msg("No audio received, closing idle session")
	s.metrics.RecordSessionFailed("idle_timeout")
	_ = s.Close()
}
