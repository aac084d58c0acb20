// Package aws provides a transcribe.Adapter backed by the AWS Transcribe
// streaming websocket endpoint.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"stt-relay-service/internal/auth"
	"stt-relay-service/internal/eventstream"
	"stt-relay-service/internal/models"
	"stt-relay-service/internal/observability/metrics"
	"stt-relay-service/internal/signer"
	"stt-relay-service/internal/transcribe"
)

const (
	service       = "transcribe"
	streamingPath = "/stream-transcription-websocket"
)

// Config holds the settings for one upstream streaming connection.
type Config struct {
	Credentials          *auth.Provider
	Region               string
	LanguageCode         string
	SampleRateHz         int
	PresignExpirySeconds int
	PartialStability     string

	// QueueSize bounds the outbound audio queue. When the upstream socket
	// cannot keep up the oldest queued frame is dropped; the queue never
	// grows without bound.
	QueueSize int

	// Endpoint overrides the derived wss endpoint; used by tests.
	Endpoint string

	Dialer *websocket.Dialer
}

// Client is a live upstream transcription session. Audio is written from a
// single goroutine so frames stay in the order they were queued; decoded
// events are delivered to the callback from the read loop, preserving arrival
// order with one emission per frame.
type Client struct {
	cfg     Config
	metrics *metrics.Metrics

	conn *websocket.Conn
	cb   transcribe.Callback

	audio      chan []byte
	stopWrite  chan struct{}
	writerDone chan struct{}
	done       chan struct{}

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// New creates an unstarted client.
func New(cfg Config) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PresignExpirySeconds <= 0 {
		cfg.PresignExpirySeconds = 15
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:        cfg,
		metrics:    metrics.DefaultMetrics,
		audio:      make(chan []byte, cfg.QueueSize),
		stopWrite:  make(chan struct{}),
		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start resolves credentials, presigns the streaming URL and opens the
// upstream socket in binary mode. The presigned URL is generated fresh here
// and is never reused across sessions.
func (c *Client) Start(ctx context.Context, cb transcribe.Callback) error {
	creds, err := c.cfg.Credentials.Resolve(ctx)
	if err != nil {
		return err
	}

	protocol := "wss"
	host := fmt.Sprintf("transcribestreaming.%s.amazonaws.com:8443", c.cfg.Region)
	path := streamingPath
	if c.cfg.Endpoint != "" {
		u, err := url.Parse(c.cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("%w: invalid endpoint %q: %v", transcribe.ErrUpstreamConnection, c.cfg.Endpoint, err)
		}
		protocol, host, path = u.Scheme, u.Host, u.Path
		if path == "" {
			path = "/"
		}
	}

	signedAt := time.Now()
	signedURL, err := signer.Presign("GET", host, path, service, signer.HexPayloadHash(nil), signer.Options{
		Key:          creds.AccessKeyId,
		Secret:       creds.SecretAccessKey,
		SessionToken: creds.SessionToken,
		Protocol:     protocol,
		Region:       c.cfg.Region,
		Expires:      c.cfg.PresignExpirySeconds,
		Timestamp:    signedAt,
		Query: map[string]string{
			"language-code":                        c.cfg.LanguageCode,
			"media-encoding":                       "pcm",
			"sample-rate":                          strconv.Itoa(c.cfg.SampleRateHz),
			"enable-partial-results-stabilization": "true",
			"partial-results-stability":            c.cfg.PartialStability,
		},
	})
	if err != nil {
		return err
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		if time.Since(signedAt) >= time.Duration(c.cfg.PresignExpirySeconds)*time.Second {
			return fmt.Errorf("%w: presigned URL expired before connection completed: %v",
				transcribe.ErrUpstreamConnection, err)
		}
		return fmt.Errorf("%w: dialing streaming endpoint: %v", transcribe.ErrUpstreamConnection, err)
	}

	c.conn = conn
	c.cb = cb

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	go func() {
		c.wg.Wait()
		close(c.done)
		_ = conn.Close()
	}()
	return nil
}

// SendAudio queues one encoded PCM chunk for the upstream socket. When the
// queue is full the oldest frame is dropped to make room (bounded-queue
// backpressure; queued audio never grows without bound).
func (c *Client) SendAudio(_ context.Context, pcm []byte) error {
	if c.isClosed() {
		return fmt.Errorf("%w: session closed", transcribe.ErrUpstreamConnection)
	}
	chunk := append([]byte(nil), pcm...)

	select {
	case c.audio <- chunk:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: session closed", transcribe.ErrUpstreamConnection)
	default:
	}

	select {
	case <-c.audio:
		c.metrics.RecordAudioDropped()
		log.Warn().Msg("Audio queue full, dropped oldest frame")
	default:
	}

	select {
	case c.audio <- chunk:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: session closed", transcribe.ErrUpstreamConnection)
	}
}

// Close ends the session. The audio queue is drained, an empty AudioEvent is
// written to signal end of stream, and the socket is torn down.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stopWrite) })
	if c.conn == nil {
		return nil
	}
	// Let the writer drain the queue and send the empty end-of-stream
	// frame before the socket goes away.
	select {
	case <-c.writerDone:
	case <-time.After(5 * time.Second):
	}
	c.closeOnce.Do(func() {
		// Unblocks the read loop.
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// The audio channel is never closed; teardown is signalled through stopWrite
// so a forwarder racing Close can never send on a closed channel.
func (c *Client) writeLoop() {
	defer c.wg.Done()
	defer close(c.writerDone)

	for {
		select {
		case chunk := <-c.audio:
			if !c.writeChunk(chunk) {
				return
			}
		case <-c.stopWrite:
			c.drainAndFinish()
			return
		}
	}
}

// drainAndFinish flushes frames already queued at teardown, then sends the
// empty audio event that tells the service the stream is complete.
func (c *Client) drainAndFinish() {
	for {
		select {
		case chunk := <-c.audio:
			if !c.writeChunk(chunk) {
				return
			}
		default:
			_ = c.conn.WriteMessage(websocket.BinaryMessage, eventstream.EncodeAudioEvent(nil))
			return
		}
	}
}

func (c *Client) writeChunk(chunk []byte) bool {
	frame := eventstream.EncodeAudioEvent(chunk)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		if !c.isClosed() {
			c.cb.OnError(fmt.Errorf("%w: writing audio frame: %v", transcribe.ErrUpstreamConnection, err))
		}
		return false
	}
	c.metrics.RecordAudioForwarded(len(chunk))
	return true
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.cb.OnError(fmt.Errorf("%w: upstream socket closed: %v", transcribe.ErrUpstreamConnection, err))
			}
			return
		}

		msg, err := eventstream.Decode(raw)
		if err != nil {
			// Scoped to this message: report and drop, the session lives on.
			c.metrics.RecordFramingError()
			c.cb.OnError(err)
			continue
		}

		if msg.Type() == eventstream.MessageTypeEvent {
			ev, err := models.ParseTranscribeEvent(msg.Payload)
			if err != nil {
				c.metrics.RecordFramingError()
				c.cb.OnError(err)
				continue
			}
			c.cb.OnTranscriptEvent(ev)
			continue
		}

		c.cb.OnError(fmt.Errorf("upstream exception: %s", models.ParseExceptionPayload(msg.Payload)))
	}
}
