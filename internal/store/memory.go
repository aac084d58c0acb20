package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"stt-relay-service/internal/models"
)

// Memory is an in-process Store used for development and tests. Writes are
// atomic per key under an internal mutex.
type Memory struct {
	mu       sync.RWMutex
	segments map[string]map[int64]models.Segment // callId -> eventTimestamp (ns) -> segment
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{segments: make(map[string]map[int64]models.Segment)}
}

// Persist stores a segment keyed by (callId, eventTimestamp), replacing any
// previous segment with the same key.
func (m *Memory) Persist(_ context.Context, seg models.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byTime, ok := m.segments[seg.CallId]
	if !ok {
		byTime = make(map[int64]models.Segment)
		m.segments[seg.CallId] = byTime
	}
	byTime[seg.EventTimestamp.UnixNano()] = seg
	return nil
}

// Query returns segments for callId newer than since, ordered by event
// timestamp.
func (m *Memory) Query(_ context.Context, callId string, since time.Time) ([]models.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Segment
	for ts, seg := range m.segments[callId] {
		if ts > since.UnixNano() {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EventTimestamp.Before(out[j].EventTimestamp)
	})
	return out, nil
}

// QueryByResultId scans for all stored revisions of a result identifier.
func (m *Memory) QueryByResultId(_ context.Context, resultId string) ([]models.Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Segment
	for _, byTime := range m.segments {
		for _, seg := range byTime {
			if seg.ResultId == resultId {
				out = append(out, seg)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EventTimestamp.Before(out[j].EventTimestamp)
	})
	return out, nil
}

// Close releases nothing; it exists to satisfy Store.
func (m *Memory) Close() {}
