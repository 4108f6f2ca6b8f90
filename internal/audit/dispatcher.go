package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full instead of blocking
	// the auth flow that produced them.
	DropIfFull bool
	// DrainTimeout bounds how long Close waits for queued events.
	// Zero waits until the queue is empty.
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// Stats reports dispatcher counters.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Panics    uint64
}

// Dispatcher moves audit events off the request path onto a single
// delivery goroutine. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	finished   chan struct{}
	dropIfFull bool
	drain      time.Duration
	logger     *slog.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
	closing   atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		drain:      cfg.DrainTimeout,
		logger:     logger,
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)

	for {
		// Stop wins over a ready queue so Close starts draining promptly.
		select {
		case <-d.stop:
			d.flush()
			return
		default:
		}

		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	var deadline <-chan time.Time
	if d.drain > 0 {
		timer := time.NewTimer(d.drain)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-deadline:
			if n := len(d.queue); n > 0 {
				d.dropped.Add(uint64(n))
				d.logger.Warn("audit drain timed out", "pending", n)
			}
			return
		default:
		}

		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

// deliver isolates the worker from a misbehaving sink.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("audit sink panicked", "event_type", event.EventType, "panic", r)
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull it never blocks; otherwise it waits
// for buffer space until ctx is done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and flushes what is queued.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.finished
	})
}

// Dropped returns how many events were never delivered.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panics:    d.panics.Load(),
	}
}
