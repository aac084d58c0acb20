// Package transcribe defines the interface for streaming transcription
// backends.
package transcribe

import (
	"context"
	"errors"

	"stt-relay-service/internal/models"
)

// ErrUpstreamConnection indicates the upstream socket failed to open or
// closed unexpectedly. It is fatal to the session; the inbound socket is
// closed to avoid leaking a half-open connection.
var ErrUpstreamConnection = errors.New("upstream connection error")

// Callback receives transcript results from the transcription backend.
type Callback interface {
	// OnTranscriptEvent is called for each decoded transcript event, in
	// arrival order.
	OnTranscriptEvent(ev models.TranscribeEvent)

	// OnError is called for protocol-level errors. Fatal errors wrap
	// ErrUpstreamConnection; anything else is scoped to one message.
	OnError(err error)
}

// Adapter is a streaming transcription session.
type Adapter interface {
	// Start opens the upstream connection and begins delivering results to cb.
	Start(ctx context.Context, cb Callback) error

	// SendAudio forwards one encoded PCM chunk upstream.
	SendAudio(ctx context.Context, pcm []byte) error

	// Close ends the session and releases resources.
	Close() error
}
