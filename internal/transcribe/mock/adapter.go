// Package mock provides a transcribe adapter for testing without cloud
// credentials. It simulates realistic streaming behavior: progressive partial
// results that share one result id, followed by exactly one final result.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stt-relay-service/internal/models"
	"stt-relay-service/internal/transcribe"
)

// SimulatedUtterance is one scripted utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string
	Final    string
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"I want", "I want to", "I want to cancel"},
		Final:    "I want to cancel my subscription",
	},
	{
		Partials: []string{"Yes", "Yes please"},
		Final:    "Yes please go ahead",
	},
	{
		Partials: []string{"Can you", "Can you help", "Can you help me with"},
		Final:    "Can you help me with my account",
	},
	{
		Partials: []string{"Thank you"},
		Final:    "Thank you very much",
	},
}

// Adapter implements transcribe.Adapter with scripted responses. One partial
// result is emitted per audio frame; once the script is exhausted a single
// final result with the same result id follows.
type Adapter struct {
	Delay time.Duration

	mu           sync.Mutex
	cb           transcribe.Callback
	utterance    SimulatedUtterance
	resultId     string
	started      time.Time
	partialIndex int
	finalSent    bool
	closed       bool
}

var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a mock adapter, cycling through the default utterances.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return &Adapter{
		Delay:     10 * time.Millisecond,
		utterance: DefaultUtterances[idx],
	}
}

// NewScripted creates a mock adapter that plays back the given utterance.
func NewScripted(u SimulatedUtterance) *Adapter {
	return &Adapter{utterance: u}
}

// Start begins a mock session.
func (a *Adapter) Start(_ context.Context, cb transcribe.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	a.resultId = uuid.NewString()
	a.started = time.Now()
	return nil
}

// SendAudio simulates the service consuming one audio frame. Each frame
// advances the script by one partial; the frame after the last partial
// produces the final result, mimicking silence detection.
func (a *Adapter) SendAudio(_ context.Context, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	if a.partialIndex < len(a.utterance.Partials) {
		text := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		a.emitLocked(text, true)
		return nil
	}

	if !a.finalSent {
		a.finalSent = true
		a.emitLocked(a.utterance.Final, false)
	}
	return nil
}

// Close ends the session. If audio stopped before the script completed the
// final result is emitted first, so every utterance still finalizes.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	if a.cb != nil && !a.finalSent {
		a.finalSent = true
		a.emitLocked(a.utterance.Final, false)
	}
	a.closed = true
	return nil
}

func (a *Adapter) emitLocked(text string, isPartial bool) {
	elapsed := time.Since(a.started).Seconds()
	ev := models.TranscribeEvent{
		Transcript: models.Transcript{
			Results: []models.Result{
				{
					ResultId:  a.resultId,
					IsPartial: isPartial,
					StartTime: 0,
					EndTime:   elapsed,
					Alternatives: []models.Alternative{
						{
							Transcript: text,
							Items:      itemsFor(text, elapsed),
						},
					},
				},
			},
		},
	}

	// Emissions stay on the caller's goroutine so results arrive in script
	// order; Delay only simulates recognition latency.
	if a.Delay > 0 {
		time.Sleep(a.Delay)
	}
	a.cb.OnTranscriptEvent(ev)
}

func itemsFor(text string, endTime float64) []models.Item {
	words := strings.Fields(text)
	items := make([]models.Item, 0, len(words))
	for i, w := range words {
		items = append(items, models.Item{
			Content:   w,
			Type:      "pronunciation",
			StartTime: endTime * float64(i) / float64(len(words)),
			EndTime:   endTime * float64(i+1) / float64(len(words)),
		})
	}
	return items
}

var _ transcribe.Adapter = (*Adapter)(nil)

// String identifies the scripted utterance, useful in test failure output.
func (a *Adapter) String() string {
	return fmt.Sprintf("mock(%q)", a.utterance.Final)
}
