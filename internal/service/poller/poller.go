// Package poller delivers stored transcript segments to monitor listeners on
// a fixed cadence. Each subscription polls a sliding window over the store,
// so a listener that connects mid-call sees only what arrives from then on.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stt-relay-service/internal/models"
	"stt-relay-service/internal/observability/metrics"
	"stt-relay-service/internal/store"
)

// Listener receives the segments found by one poll tick. Ticks with nothing
// new deliver an empty slice, which keeps monitor streams visibly alive.
type Listener func([]models.Segment)

// Poller owns the polling cadence for monitor subscriptions.
type Poller struct {
	store    store.Store
	interval time.Duration
	metrics  *metrics.Metrics

	clock func() time.Time
}

// New creates a poller reading from st every interval.
func New(st store.Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		store:    st,
		interval: interval,
		metrics:  metrics.DefaultMetrics,
		clock:    time.Now,
	}
}

// Subscription is one active monitor poll loop.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe stops the poll loop. Idempotent; returns once the loop exits.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe starts polling the given call every interval, delivering each
// tick's window to fn. An interval of zero or less falls back to the
// poller's default cadence. The window slides with the tick: every query
// covers the last interval, so a segment persisted between ticks is
// reported exactly once. A failed query is logged and delivered as an empty
// tick; the loop carries on polling.
func (p *Poller) Subscribe(ctx context.Context, callId string, interval time.Duration, fn Listener) *Subscription {
	if interval <= 0 {
		interval = p.interval
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(p.poll(ctx, callId, interval))
			}
		}
	}()
	return sub
}

func (p *Poller) poll(ctx context.Context, callId string, interval time.Duration) []models.Segment {
	since := p.clock().Add(-interval)
	segments, err := p.store.Query(ctx, callId, since)
	p.metrics.RecordPollTick(err)
	if err != nil {
		log.Error().Err(err).Str("callId", callId).Msg("Transcript poll failed")
		return nil
	}
	return segments
}
