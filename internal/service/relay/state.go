// Package relay coordinates one live transcription session: inbound audio is
// converted and forwarded upstream, and transcript results fan out to
// listeners, the store and the event queue.
package relay

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a relay session.
type State int

const (
	// StateConnecting - upstream session is being established.
	StateConnecting State = iota
	// StateStreaming - audio flows upstream, results flow back.
	StateStreaming
	// StateClosing - teardown has begun, no new audio accepted.
	StateClosing
	// StateClosed - session is fully torn down. Terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal reports whether the state is CLOSED.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// Errors for invalid lifecycle transitions.
var (
	ErrSessionClosed  = errors.New("session is closed")
	ErrNotStreaming   = errors.New("session is not streaming")
	ErrAlreadyStarted = errors.New("session already started")
)

// Lifecycle is the state machine for one session. Thread-safe.
//
// Transitions:
//
//	CONNECTING → STREAMING → CLOSING → CLOSED
//	     │                      ▲
//	     └──────────────────────┘  (failed connect goes straight to teardown)
//
// Rules:
//   - CONNECTING: no audio accepted yet; may move to STREAMING or CLOSING
//   - STREAMING: audio and results flow; may move to CLOSING
//   - CLOSING: in-flight results may still be delivered; no new audio
//   - CLOSED: everything is a no-op
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in CONNECTING state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateConnecting}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// MarkStreaming moves CONNECTING to STREAMING.
func (l *Lifecycle) MarkStreaming() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateConnecting:
		l.state = StateStreaming
		return nil
	case StateStreaming:
		return ErrAlreadyStarted
	default:
		return ErrSessionClosed
	}
}

// CanForwardAudio reports whether audio may be sent upstream.
func (l *Lifecycle) CanForwardAudio() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateStreaming
}

// BeginClose moves to CLOSING from any live state. It returns true exactly
// once, so teardown runs a single time no matter which side initiates it.
func (l *Lifecycle) BeginClose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosing || l.state == StateClosed {
		return false
	}
	l.state = StateClosing
	return true
}

// MarkClosed moves to the terminal CLOSED state. Idempotent.
func (l *Lifecycle) MarkClosed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}
