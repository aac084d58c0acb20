package relay

import (
	"sync"

	"stt-relay-service/internal/models"
)

// MessageListener receives transcript segments, partial and final alike.
type MessageListener func(models.Segment)

// ErrorListener receives session errors.
type ErrorListener func(error)

type emission struct {
	segment *models.Segment
	err     error
}

// Emitter dispatches segments and errors to registered listeners. A single
// dispatch goroutine drains a buffered queue, so listeners observe emissions
// in the order they were produced and slow listeners never block the
// transcript read path directly.
type Emitter struct {
	mu        sync.Mutex
	listeners []MessageListener
	errors    []ErrorListener

	queue chan emission
	done  chan struct{}
	once  sync.Once
}

// NewEmitter creates a started emitter.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	e := &Emitter{
		queue: make(chan emission, buffer),
		done:  make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// OnMessage registers a listener for transcript segments.
func (e *Emitter) OnMessage(fn MessageListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// OnError registers a listener for session errors.
func (e *Emitter) OnError(fn ErrorListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, fn)
}

// EmitSegment queues a segment for dispatch. Emissions after Close are
// dropped.
func (e *Emitter) EmitSegment(seg models.Segment) {
	e.emit(emission{segment: &seg})
}

// EmitError queues an error for dispatch. Emissions after Close are dropped.
func (e *Emitter) EmitError(err error) {
	e.emit(emission{err: err})
}

func (e *Emitter) emit(em emission) {
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.queue <- em:
	case <-e.done:
	}
}

// Close stops dispatch after the queue drains. Safe to call more than once.
func (e *Emitter) Close() {
	e.once.Do(func() { close(e.done) })
}

func (e *Emitter) dispatch() {
	for {
		select {
		case em := <-e.queue:
			e.deliver(em)
		case <-e.done:
			// Drain what was queued before close.
			for {
				select {
				case em := <-e.queue:
					e.deliver(em)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) deliver(em emission) {
	e.mu.Lock()
	listeners := append([]MessageListener(nil), e.listeners...)
	errListeners := append([]ErrorListener(nil), e.errors...)
	e.mu.Unlock()

	if em.segment != nil {
		for _, fn := range listeners {
			fn(*em.segment)
		}
		return
	}
	for _, fn := range errListeners {
		fn(em.err)
	}
}
