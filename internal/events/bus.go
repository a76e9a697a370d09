package events

import (
	"context"
	"log/slog"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/metrics"
)

// Handler consumes events. Implemented by *engine.Engine.
type Handler interface {
	Handle(ctx context.Context, ev domain.Event) (string, error)
}

// Publisher accepts events for later delivery.
type Publisher interface {
	Publish(ev domain.Event) bool
}

// Bus queues events and hands them to a Handler one at a time, in
// publication order.
type Bus struct {
	queue   *eventQueue
	handler Handler
	logger  *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates a Bus delivering to h.
func NewBus(h Handler, opts ...BusOption) *Bus {
	b := &Bus{
		queue:   newEventQueue(),
		handler: h,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues ev. It never blocks. Returns false, and drops the event,
// once the bus is closed; the next reconciliation covers dropped events.
func (b *Bus) Publish(ev domain.Event) bool {
	if !b.queue.Enqueue(ev) {
		b.logger.Warn("event dropped: bus closed", "event", ev.String())
		return false
	}
	metrics.QueueDepth.WithLabelValues().Set(float64(b.queue.Len()))
	return true
}

// Len returns the number of events waiting.
func (b *Bus) Len() int {
	return b.queue.Len()
}

// Run dispatches events until ctx is cancelled or the bus is closed and
// drained. Handler errors are logged; the loop keeps going.
func (b *Bus) Run(ctx context.Context) error {
	b.logger.Info("event dispatcher starting")

	for {
		if ev, ok := b.queue.TryDequeue(); ok {
			b.dispatch(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			b.logger.Info("event dispatcher stopping: context cancelled", "pending", b.queue.Len())
			b.queue.Close()
			return ctx.Err()

		case <-b.queue.Wait():
			// The signal channel is closed by Close, so this fires at once
			// on a closed queue.
			if b.closedAndEmpty() {
				b.logger.Info("event dispatcher stopping: bus closed")
				return nil
			}
		}
	}
}

// Drain dispatches events until the queue is empty, including the events
// published while draining. For one-shot commands that have no dispatcher
// goroutine.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := b.queue.TryDequeue()
		if !ok {
			return nil
		}
		b.dispatch(ctx, ev)
	}
}

// Close stops accepting events. Run returns once the queue is drained.
func (b *Bus) Close() {
	b.queue.Close()
}

func (b *Bus) closedAndEmpty() bool {
	b.queue.mu.Lock()
	defer b.queue.mu.Unlock()
	return b.queue.closed && len(b.queue.events) == 0
}

func (b *Bus) dispatch(ctx context.Context, ev domain.Event) {
	metrics.QueueDepth.WithLabelValues().Set(float64(b.queue.Len()))

	outcome, err := b.handler.Handle(ctx, ev)
	if err != nil {
		b.logger.Error("event handling failed", "event", ev.String(), "error", err)
		return
	}
	b.logger.Debug("event handled", "event", ev.String(), "outcome", outcome)
}
