package sink

import (
	"chat-live/domain"
	"chat-live/domain/event"
	"chat-live/errors"
	"context"
	"log/slog"
	"slices"
	"sync"
)

// ConnectionSink is the bounded outbox of one connection.
//
// Consume never blocks: the fan-out worker serves every connection and must not wait
// on a slow one. When the outbox is full the oldest queued presence event makes room for
// the new one. Without any, a presence event is dropped and a state-changing one closes
// the sink so the client resyncs on reconnect.
type ConnectionSink struct {
	log      *slog.Logger
	connID   domain.ConnectionID
	capacity int

	mu     sync.Mutex
	queue  []event.Outbound
	closed bool

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnectionSink(log *slog.Logger, connID domain.ConnectionID, capacity int) *ConnectionSink {
	if capacity <= 0 {
		capacity = 1
	}
	return &ConnectionSink{
		log:      log,
		connID:   connID,
		capacity: capacity,
		queue:    make([]event.Outbound, 0, capacity),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *ConnectionSink) Consume(_ context.Context, e event.Outbound) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrSinkClosed
	}
	if len(s.queue) < s.capacity {
		s.queue = append(s.queue, e)
		s.mu.Unlock()
		s.signal()
		return nil
	}
	idx := slices.IndexFunc(s.queue, func(o event.Outbound) bool { return o.Kind.IsPresence() })
	if idx >= 0 {
		evicted := s.queue[idx].Kind
		s.queue = append(slices.Delete(s.queue, idx, idx+1), e)
		s.mu.Unlock()
		s.log.Debug("Presence event evicted", "conn_id", s.connID, "evicted", evicted, "kind", e.Kind)
		s.signal()
		return nil
	}
	s.mu.Unlock()

	if e.Kind.IsPresence() {
		return errors.ErrEventDropped
	}
	s.Close()
	return errors.ErrSlowConsumer
}

func (s *ConnectionSink) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Drain returns the queued events in order and empties the outbox.
func (s *ConnectionSink) Drain() []event.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	out := s.queue
	s.queue = make([]event.Outbound, 0, s.capacity)
	return out
}

// Ready is signalled when events are waiting to be drained.
func (s *ConnectionSink) Ready() <-chan struct{} { return s.ready }

// Done is closed once the sink stops accepting events.
func (s *ConnectionSink) Done() <-chan struct{} { return s.done }

func (s *ConnectionSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *ConnectionSink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}
