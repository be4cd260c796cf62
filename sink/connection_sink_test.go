package sink

import (
	"chat-live/domain/event"
	"chat-live/errors"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func outbound(kind event.Kind, body string) event.Outbound {
	return event.Outbound{Kind: kind, Body: []byte(body)}
}

func kinds(events []event.Outbound) []event.Kind {
	return lo.Map(events, func(e event.Outbound, _ int) event.Kind { return e.Kind })
}

func bodies(events []event.Outbound) []string {
	return lo.Map(events, func(e event.Outbound, _ int) string { return string(e.Body) })
}

func TestConnectionSink_Drain_Keeps_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewConnectionSink(logs.GetLoggerFromLevel(slog.LevelDebug), "c1", 4)

	req.NoError(s.Consume(ctx, outbound(event.KindNewMessage, "1")))
	req.NoError(s.Consume(ctx, outbound(event.KindTyping, "2")))

	// Then the writer is woken up
	select {
	case <-s.Ready():
	default:
		req.Fail("Ready should be signalled")
	}
	req.Equal([]event.Kind{event.KindNewMessage, event.KindTyping}, kinds(s.Drain()))
	req.Nil(s.Drain())
}

func TestConnectionSink_Overflow_Evicts_Oldest_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewConnectionSink(logs.GetLoggerFromLevel(slog.LevelDebug), "c1", 3)

	// Given a full outbox holding typing hints
	req.NoError(s.Consume(ctx, outbound(event.KindTyping, "t1")))
	req.NoError(s.Consume(ctx, outbound(event.KindNewMessage, "m1")))
	req.NoError(s.Consume(ctx, outbound(event.KindStopTyping, "t2")))

	// When another typing hint arrives it replaces the oldest one
	req.NoError(s.Consume(ctx, outbound(event.KindTyping, "t3")))

	// When a state-changing event arrives the oldest remaining hint makes room for it
	req.NoError(s.Consume(ctx, outbound(event.KindMessageEdited, "m2")))

	drained := s.Drain()
	req.Equal([]event.Kind{event.KindNewMessage, event.KindTyping, event.KindMessageEdited}, kinds(drained))
	req.Equal([]string{"m1", "t3", "m2"}, bodies(drained))
}

func TestConnectionSink_Presence_Dropped_Without_Presence_Queued(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewConnectionSink(logs.GetLoggerFromLevel(slog.LevelDebug), "c1", 2)

	// Given an outbox full of messages
	req.NoError(s.Consume(ctx, outbound(event.KindNewMessage, "m1")))
	req.NoError(s.Consume(ctx, outbound(event.KindNewMessage, "m2")))

	// When a typing hint arrives
	err := s.Consume(ctx, outbound(event.KindTyping, "t1"))

	// Then only the hint is lost and the connection stays open
	req.ErrorIs(err, errors.ErrEventDropped)
	select {
	case <-s.Done():
		req.Fail("Sink should stay open")
	default:
	}
	req.Equal([]string{"m1", "m2"}, bodies(s.Drain()))
}

func TestConnectionSink_State_Overflow_Closes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewConnectionSink(logs.GetLoggerFromLevel(slog.LevelDebug), "c1", 2)

	// Given an outbox full of messages
	req.NoError(s.Consume(ctx, outbound(event.KindNewMessage, "m1")))
	req.NoError(s.Consume(ctx, outbound(event.KindNewMessage, "m2")))

	// When one more message cannot be queued
	err := s.Consume(ctx, outbound(event.KindMessagePinned, "m3"))

	// Then the consumer is declared slow and the sink closes
	req.ErrorIs(err, errors.ErrSlowConsumer)
	select {
	case <-s.Done():
	default:
		req.Fail("Sink should be closed")
	}
	req.ErrorIs(s.Consume(ctx, outbound(event.KindNewMessage, "m4")), errors.ErrSinkClosed)

	// And closing again is harmless
	s.Close()
}
