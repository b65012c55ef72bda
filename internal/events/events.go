// Package events delivers post-commit side effects asynchronously. Publishing
// never blocks the caller; events that do not fit in the buffer are dropped.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
)

type Kind string

const (
	KindActivity       Kind = "activity"
	KindListingChanged Kind = "listing_changed"
	KindListingDeleted Kind = "listing_deleted"
)

// Event is published after the transaction that produced it committed.
type Event struct {
	Kind     Kind
	Activity *entity.UserActivity
	Listing  *entity.BottleListing
}

func ActivityEvent(a *entity.UserActivity) Event {
	return Event{Kind: KindActivity, Activity: a}
}

func ListingEvent(l *entity.BottleListing) Event {
	return Event{Kind: KindListingChanged, Listing: l}
}

// Handler consumes an event. Errors are logged, never retried.
type Handler func(ctx context.Context, e Event) error

// Publisher is what services depend on.
type Publisher interface {
	Publish(events ...Event)
}

// Dispatcher fans events out to subscribers from a bounded queue drained by a
// fixed set of workers.
type Dispatcher struct {
	queue    chan Event
	workers  int
	timeout  time.Duration
	mu       sync.RWMutex
	handlers map[Kind][]namedHandler
	wg       sync.WaitGroup
	dropped  atomic.Int64
	once     sync.Once

	// closeMu guards closed and sends on queue against close(queue).
	closeMu sync.RWMutex
	closed  bool
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewDispatcher(bufferSize, workers int, handlerTimeout time.Duration) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	if handlerTimeout <= 0 {
		handlerTimeout = 10 * time.Second
	}
	return &Dispatcher{
		queue:    make(chan Event, bufferSize),
		workers:  workers,
		timeout:  handlerTimeout,
		handlers: make(map[Kind][]namedHandler),
	}
}

// Subscribe registers fn for kind. Call before Start.
func (d *Dispatcher) Subscribe(kind Kind, name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], namedHandler{name: name, fn: fn})
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	log.Info().Int("workers", d.workers).Int("buffer", cap(d.queue)).Msg("Event dispatcher started")
}

// Publish is safe to call concurrently with Shutdown.
func (d *Dispatcher) Publish(events ...Event) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		d.dropped.Add(int64(len(events)))
		log.Warn().Int("count", len(events)).Msg("Event dispatcher closed, dropping events")
		return
	}
	for _, e := range events {
		select {
		case d.queue <- e:
		default:
			d.dropped.Add(1)
			log.Warn().Str("kind", string(e.Kind)).Msg("Event queue full, dropping event")
		}
	}
}

// Dropped returns how many events were discarded so far.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Shutdown stops accepting events and waits for queued ones to be handled or
// for ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.closeMu.Lock()
		d.closed = true
		close(d.queue)
		d.closeMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for e := range d.queue {
		d.dispatch(e)
	}
}

func (d *Dispatcher) dispatch(e Event) {
	d.mu.RLock()
	handlers := d.handlers[e.Kind]
	d.mu.RUnlock()

	for _, h := range handlers {
		d.invoke(h, e)
	}
}

func (d *Dispatcher) invoke(h namedHandler, e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("handler", h.name).Msg("Event handler panicked")
		}
	}()

	if err := h.fn(ctx, e); err != nil {
		log.Error().Err(err).Str("handler", h.name).Str("kind", string(e.Kind)).Msg("Event handler failed")
	}
}
