package mock

import (
	"context"
	"sync"
	"testing"

	"stt-relay-service/internal/models"
)

type capture struct {
	mu     sync.Mutex
	events []models.TranscribeEvent
}

func (c *capture) OnTranscriptEvent(ev models.TranscribeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capture) OnError(error) {}

func (c *capture) snapshot() []models.TranscribeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.TranscribeEvent(nil), c.events...)
}

func firstResult(t *testing.T, ev models.TranscribeEvent) models.Result {
	t.Helper()
	if len(ev.Transcript.Results) != 1 {
		t.Fatalf("event carries %d results, want 1", len(ev.Transcript.Results))
	}
	return ev.Transcript.Results[0]
}

func TestAdapterPlaysScriptThenFinalizes(t *testing.T) {
	t.Parallel()

	script := SimulatedUtterance{
		Partials: []string{"Hello", "Hello there"},
		Final:    "Hello there friend",
	}
	a := NewScripted(script)
	cb := &capture{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Two partials plus silence detection on the third frame.
	for i := 0; i < 3; i++ {
		if err := a.SendAudio(context.Background(), []byte{0}); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}

	events := cb.snapshot()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	wantTexts := []string{"Hello", "Hello there", "Hello there friend"}
	var resultId string
	for i, ev := range events {
		r := firstResult(t, ev)
		if got := r.Alternatives[0].Transcript; got != wantTexts[i] {
			t.Errorf("event %d transcript = %q, want %q", i, got, wantTexts[i])
		}
		wantPartial := i < len(script.Partials)
		if r.IsPartial != wantPartial {
			t.Errorf("event %d IsPartial = %v, want %v", i, r.IsPartial, wantPartial)
		}
		if i == 0 {
			resultId = r.ResultId
			if resultId == "" {
				t.Fatal("empty result id")
			}
		} else if r.ResultId != resultId {
			t.Errorf("event %d result id %q differs from %q", i, r.ResultId, resultId)
		}
	}
}

func TestAdapterEmitsExactlyOneFinal(t *testing.T) {
	t.Parallel()

	a := NewScripted(SimulatedUtterance{Partials: []string{"Hi"}, Final: "Hi there"})
	cb := &capture{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Keep sending long past the end of the script.
	for i := 0; i < 10; i++ {
		if err := a.SendAudio(context.Background(), nil); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	finals := 0
	for _, ev := range cb.snapshot() {
		if !firstResult(t, ev).IsPartial {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("got %d final results, want exactly 1", finals)
	}
}

func TestAdapterFinalizesOnEarlyClose(t *testing.T) {
	t.Parallel()

	a := NewScripted(SimulatedUtterance{Partials: []string{"One", "Two", "Three"}, Final: "One two three"})
	cb := &capture{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Audio stops after a single frame; Close must still finalize.
	if err := a.SendAudio(context.Background(), nil); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := cb.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want partial + final", len(events))
	}
	final := firstResult(t, events[1])
	if final.IsPartial || final.Alternatives[0].Transcript != "One two three" {
		t.Errorf("last event = %+v, want the final transcript", final)
	}
}

func TestAdapterIgnoresAudioAfterClose(t *testing.T) {
	t.Parallel()

	a := NewScripted(SimulatedUtterance{Final: "Done"})
	cb := &capture{}
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	before := len(cb.snapshot())
	if err := a.SendAudio(context.Background(), []byte{1}); err != nil {
		t.Fatalf("SendAudio after close: %v", err)
	}
	if got := len(cb.snapshot()); got != before {
		t.Errorf("events grew from %d to %d after close", before, got)
	}
}

func TestNewCyclesUtterances(t *testing.T) {
	a, b := New(), New()
	if a.utterance.Final == b.utterance.Final {
		t.Errorf("consecutive adapters replay the same utterance %q", a.utterance.Final)
	}
}
