// Package models defines the transcript event shapes exchanged with the
// streaming transcription service and the segment records kept in the store.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"stt-relay-service/internal/eventstream"
)

// Item is one word-level recognition item inside an alternative.
type Item struct {
	Content               string  `json:"Content"`
	StartTime             float64 `json:"StartTime"`
	EndTime               float64 `json:"EndTime"`
	Stable                bool    `json:"Stable"`
	Type                  string  `json:"Type"`
	VocabularyFilterMatch bool    `json:"VocabularyFilterMatch"`
}

// Alternative is one transcription hypothesis for a result.
type Alternative struct {
	Transcript string `json:"Transcript"`
	Items      []Item `json:"Items"`
}

// Result is one recognized utterance. ResultId is stable across partial
// revisions of the same utterance; IsPartial reports whether the service may
// still revise it.
type Result struct {
	ResultId     string        `json:"ResultId"`
	IsPartial    bool          `json:"IsPartial"`
	StartTime    float64       `json:"StartTime"`
	EndTime      float64       `json:"EndTime"`
	Alternatives []Alternative `json:"Alternatives"`
}

// Transcript groups the results carried by one event.
type Transcript struct {
	Results []Result `json:"Results"`
}

// TranscribeEvent is the JSON body of an upstream "event" frame. Events with
// no results are keep-alives and are legal.
type TranscribeEvent struct {
	Transcript Transcript `json:"Transcript"`
}

// ExceptionPayload is the JSON body of a non-event frame.
type ExceptionPayload struct {
	Message string `json:"Message"`
}

// ParseTranscribeEvent validates and decodes an event frame body. Payloads
// that do not parse as a transcript event are rejected as framing errors so
// unrecognized shapes never propagate into the relay.
func ParseTranscribeEvent(payload []byte) (TranscribeEvent, error) {
	var ev TranscribeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return TranscribeEvent{}, fmt.Errorf("%w: transcript payload: %v", eventstream.ErrFraming, err)
	}
	for i, r := range ev.Transcript.Results {
		if r.ResultId == "" {
			return TranscribeEvent{}, fmt.Errorf("%w: result %d has no ResultId", eventstream.ErrFraming, i)
		}
	}
	return ev, nil
}

// ParseExceptionPayload extracts the error text from a non-event frame body.
// A body without a usable message falls back to the raw payload.
func ParseExceptionPayload(payload []byte) string {
	var ex ExceptionPayload
	if err := json.Unmarshal(payload, &ex); err != nil || ex.Message == "" {
		return string(payload)
	}
	return ex.Message
}

// Segment is one finalized (or, transiently, partial) transcript unit.
// Persisted segments are keyed by (CallId, EventTimestamp); each revision of a
// ResultId is a new, replacing segment and is never mutated after creation.
type Segment struct {
	CallId         string    `json:"callId"`
	CallerId       string    `json:"callerId,omitempty"`
	ResultId       string    `json:"resultId"`
	SpeakerName    string    `json:"speakerName"`
	StartTime      float64   `json:"startTime"`
	EndTime        float64   `json:"endTime"`
	IsPartial      bool      `json:"isPartial"`
	Transcript     string    `json:"transcript"`
	Items          []Item    `json:"items,omitempty"`
	EventTimestamp time.Time `json:"eventTimestamp"`
}

// NewSegment builds a segment from one upstream result, attaching the call
// identity and a capture timestamp.
func NewSegment(callId, speakerName string, r Result, receivedAt time.Time) Segment {
	seg := Segment{
		CallId:         callId,
		ResultId:       r.ResultId,
		SpeakerName:    speakerName,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		IsPartial:      r.IsPartial,
		EventTimestamp: receivedAt.UTC(),
	}
	if len(r.Alternatives) > 0 {
		seg.Transcript = r.Alternatives[0].Transcript
		seg.Items = r.Alternatives[0].Items
	}
	return seg
}
