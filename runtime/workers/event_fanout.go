package workers

import (
	"chat-live/contract"
	"chat-live/domain/event"
	"chat-live/errors"
	"chat-live/observability"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
)

// EventFanout is the single serialization point of routed events.
//
// The router enqueues deliveries on a bounded channel, the worker drains them one at a
// time and queues each event on the outbox of every target connection. Because only
// one goroutine hands events to sinks, all members of a room observe room events in
// the same order.
//
// Delivery is best effort: no retry, no durability. A connection that went away between
// routing and fan-out is skipped.
type EventFanout struct {
	log        *slog.Logger
	registry   contract.IRegistry
	metrics    *observability.Metrics
	deliveries chan event.Delivery
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, metrics *observability.Metrics, bufferSize int) *EventFanout {
	return &EventFanout{
		log:        log,
		registry:   registry,
		metrics:    metrics,
		deliveries: make(chan event.Delivery, bufferSize),
	}
}

// Dispatch enqueues a delivery, waiting until ctx is done when the channel is full.
func (w *EventFanout) Dispatch(ctx context.Context, d event.Delivery) error {
	select {
	case w.deliveries <- d:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errors.ErrDispatchTimeout, ctx.Err())
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case d := <-w.deliveries:
			w.Fanout(ctx, d)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		}
	}
}

// Fanout One sink for each target connection
func (w *EventFanout) Fanout(ctx context.Context, d event.Delivery) {
	kind := string(d.Event.Kind)
	for _, connID := range d.Targets {
		sink, ok := w.registry.Sink(connID)
		if !ok {
			w.metrics.Dropped(kind, "gone")
			continue
		}
		err := sink.Consume(ctx, d.Event)
		switch {
		case err == nil:
			w.metrics.Delivered(kind)
		case stderrors.Is(err, errors.ErrSlowConsumer):
			w.metrics.SlowConsumer()
			w.metrics.Dropped(kind, "slow_consumer")
			w.log.Warn("Slow consumer disconnected", "conn_id", connID, "kind", kind, "room_id", d.Room)
		default:
			w.metrics.Dropped(kind, "outbox")
			w.log.Debug("Event not queued", "conn_id", connID, "kind", kind, "error", err)
		}
	}
}
