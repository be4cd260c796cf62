package runtime

import (
	"chat-live/domain"
	"chat-live/domain/event"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type nopSink struct{}

func (nopSink) Consume(context.Context, event.Outbound) error { return nil }

func newRegistry() (*Registry, *Membership) {
	membership := NewMembership()
	return NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), membership), membership
}

func TestRegistry_Register_Multiple_Sessions(t *testing.T) {
	req := require.New(t)
	registry, _ := newRegistry()

	// Given a user with two open tabs
	registry.Connect("conn-1", nopSink{})
	registry.Connect("conn-2", nopSink{})
	registry.Register("conn-1", "alice")
	registry.Register("conn-2", "alice")
	registry.Register("conn-2", "alice")

	// Then both connections belong to the user
	req.ElementsMatch([]domain.ConnectionID{"conn-1", "conn-2"}, registry.ConnectionsFor("alice"))
	owner, ok := registry.UserOf("conn-1")
	req.True(ok)
	req.Equal("alice", owner)
	req.Equal(2, registry.Count())
	req.Empty(registry.ConnectionsFor("bob"))
}

func TestRegistry_Register_Moves_Connection(t *testing.T) {
	req := require.New(t)
	registry, _ := newRegistry()
	registry.Connect("conn-1", nopSink{})

	registry.Register("conn-1", "alice")
	registry.Register("conn-1", "bob")

	req.Empty(registry.ConnectionsFor("alice"))
	req.Equal([]domain.ConnectionID{"conn-1"}, registry.ConnectionsFor("bob"))
}

func TestRegistry_Unregister_Leaves_Rooms(t *testing.T) {
	req := require.New(t)
	registry, membership := newRegistry()

	// Given a set up connection in two rooms
	registry.Connect("conn-1", nopSink{})
	registry.Register("conn-1", "alice")
	membership.Join("c1", "conn-1")
	membership.Join("c2", "conn-1")

	// When it goes away
	registry.Unregister("conn-1")

	// Then nothing references it anymore
	_, ok := registry.Sink("conn-1")
	req.False(ok)
	_, ok = registry.UserOf("conn-1")
	req.False(ok)
	req.Empty(registry.ConnectionsFor("alice"))
	req.Empty(membership.RoomsOf("conn-1"))
	req.Zero(membership.RoomCount())
	req.Zero(registry.Count())

	// Unknown ids are ignored
	registry.Unregister("conn-404")
}

func TestRegistry_Unregister_Without_Setup(t *testing.T) {
	req := require.New(t)
	registry, membership := newRegistry()

	registry.Connect("conn-1", nopSink{})
	membership.Join("c1", "conn-1")
	registry.Unregister("conn-1")

	req.Empty(membership.MembersOf("c1"))
	req.Zero(registry.Count())
}
