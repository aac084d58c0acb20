// Package store persists finalized transcript segments and serves the range
// queries used by the live-monitor poller.
package store

import (
	"context"
	"errors"
	"time"

	"stt-relay-service/internal/models"
)

// ErrPersistence indicates a write or query failure against the result store.
// It is never fatal to a live session: callers log it and carry on.
var ErrPersistence = errors.New("persistence error")

// Store is the result sink. Persist is idempotent on identical
// (callId, eventTimestamp) pairs: the last write for a key wins. Query returns
// segments for a call with event timestamp strictly greater than since,
// ordered by event timestamp.
type Store interface {
	Persist(ctx context.Context, seg models.Segment) error
	Query(ctx context.Context, callId string, since time.Time) ([]models.Segment, error)
	QueryByResultId(ctx context.Context, resultId string) ([]models.Segment, error)
	Close()
}
