package runtime

import (
	"chat-live/domain"
	"chat-live/domain/event"
	"chat-live/errors"
	"chat-live/mocks"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	router     *Router
	registry   *Registry
	membership *Membership
	deliveries *[]event.Delivery
}

func newRouterFixture(t *testing.T, selfEcho SelfEcho) routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	membership := NewMembership()
	registry := NewRegistry(log, membership)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	var deliveries []event.Delivery
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d event.Delivery) error {
			deliveries = append(deliveries, d)
			return nil
		}).AnyTimes()
	router := NewRouter(log, RouterConfig{SelfEcho: selfEcho}, registry, membership, dispatcher, nil)
	return routerFixture{router: router, registry: registry, membership: membership, deliveries: &deliveries}
}

func frame(t *testing.T, kind event.Kind, data any) event.Frame {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return event.Frame{Event: kind, Data: raw}
}

// connect opens a connection for the user and sets it up, forgetting the connected ack.
func (f routerFixture) connect(t *testing.T, connID domain.ConnectionID, userID string) {
	t.Helper()
	f.registry.Connect(connID, nopSink{})
	f.router.Handle(context.Background(), connID, frame(t, event.KindSetup, map[string]string{"_id": userID}))
	*f.deliveries = nil
}

func (f routerFixture) last(t *testing.T) event.Delivery {
	t.Helper()
	require.NotEmpty(t, *f.deliveries)
	return (*f.deliveries)[len(*f.deliveries)-1]
}

func message(id, chatID, senderID string, members ...string) domain.Message {
	users := []domain.User{}
	for _, m := range members {
		users = append(users, domain.User{ID: m})
	}
	return domain.Message{
		ID:      id,
		Sender:  domain.User{ID: senderID},
		Content: "hello",
		Chat:    &domain.Chat{ID: chatID, Users: users},
	}
}

func TestRouter_Setup_Acknowledged(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, SelfEchoSessions)
	ctx := context.Background()
	f.registry.Connect("conn-1", nopSink{})

	// When the connection announces its user
	f.router.Handle(ctx, "conn-1", frame(t, event.KindSetup, map[string]string{"_id": "alice"}))

	// Then it is registered and only the connection itself gets "connected"
	req.Equal([]domain.ConnectionID{"conn-1"}, f.registry.ConnectionsFor("alice"))
	d := f.last(t)
	req.Equal(event.KindConnected, d.Event.Kind)
	req.Equal([]domain.ConnectionID{"conn-1"}, d.Targets)
	req.JSONEq(`{"event":"connected","data":{"_id":"alice"}}`, string(d.Event.Body))

	// When the same connection asks for another user
	f.router.Handle(ctx, "conn-1", frame(t, event.KindSetup, map[string]string{"_id": "mallory"}))

	// Then it is refused and the first binding stays
	d = f.last(t)
	req.Equal(event.KindError, d.Event.Kind)
	req.Equal([]domain.ConnectionID{"conn-1"}, d.Targets)
	req.Empty(f.registry.ConnectionsFor("mallory"))
	req.Equal([]domain.ConnectionID{"conn-1"}, f.registry.ConnectionsFor("alice"))

	// When the same user is announced again
	f.router.Handle(ctx, "conn-1", frame(t, event.KindSetup, map[string]string{"_id": "alice"}))

	// Then it is acknowledged again
	req.Equal(event.KindConnected, f.last(t).Event.Kind)
	req.Equal([]domain.ConnectionID{"conn-1"}, f.registry.ConnectionsFor("alice"))
}

func TestRouter_Drops_Invalid_Input(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, SelfEchoSessions)
	ctx := context.Background()
	f.registry.Connect("conn-0", nopSink{})

	// Events before setup are ignored
	f.router.Handle(ctx, "conn-0", frame(t, event.KindJoinRoom, "c1"))
	req.Empty(f.membership.MembersOf("c1"))

	f.connect(t, "conn-1", "alice")
	f.connect(t, "conn-2", "bob")
	f.membership.Join("c1", "conn-2")

	f.router.Handle(ctx, "conn-1", event.Frame{Event: "dance"})
	f.router.Handle(ctx, "conn-1", event.Frame{Event: event.KindTyping, Data: json.RawMessage(`{not json`)})
	f.router.Handle(ctx, "conn-1", frame(t, event.KindTyping, ""))
	f.router.Handle(ctx, "conn-1", event.Frame{Event: event.KindSetup})

	// A message claiming another sender is dropped
	f.router.Handle(ctx, "conn-1", frame(t, event.KindNewMessage, message("m1", "c1", "bob", "alice", "bob")))

	req.Empty(*f.deliveries)
}

func TestRouter_Join_Leave(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, SelfEchoSessions)
	ctx := context.Background()
	f.connect(t, "conn-1", "alice")

	f.router.Handle(ctx, "conn-1", frame(t, event.KindJoinRoom, "c1"))
	f.router.Handle(ctx, "conn-1", frame(t, event.KindJoinRoom, map[string]string{"roomId": "c2"}))
	req.ElementsMatch([]domain.RoomID{"c1", "c2"}, f.membership.RoomsOf("conn-1"))

	f.router.Handle(ctx, "conn-1", frame(t, event.KindLeaveRoom, "c1"))
	req.Equal([]domain.RoomID{"c2"}, f.membership.RoomsOf("conn-1"))

	// Membership changes are not announced
	req.Empty(*f.deliveries)
}

func TestRouter_Typing_Reaches_Room_But_Not_Source(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, SelfEchoSessions)
	ctx := context.Background()
	f.connect(t, "conn-1", "alice")
	f.connect(t, "conn-2", "bob")
	f.connect(t, "conn-3", "carol")
	f.membership.Join("c1", "conn-1")
	f.membership.Join("c1", "conn-2")

	f.router.Handle(ctx, "conn-1", frame(t, event.KindTyping, "c1"))

	d := f.last(t)
	req.Equal(event.KindTyping, d.Event.Kind)
	req.Equal(domain.RoomID("c1"), d.Room)
	req.Equal([]domain.ConnectionID{"conn-2"}, d.Targets)

	// Alone in a room nobody is notified
	*f.deliveries = nil
	f.membership.Join("c9", "conn-3")
	f.router.Handle(ctx, "conn-3", frame(t, event.KindStopTyping, "c9"))
	req.Empty(*f.deliveries)
}

func TestRouter_NewMessage_Reaches_Chat_Users_Outside_Room(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, SelfEchoSessions)
	ctx := context.Background()

	// Given alice with two tabs, bob in the room and carol only online
	f.connect(t, "conn-a1", "alice")
	f.connect(t, "conn-a2", "alice")
	f.connect(t, "conn-b", "bob")
	f.connect(t, "conn-c", "carol")
	f.connect(t, "conn-d", "dave")
	f.membership.Join("c1", "conn-a1")
	f.membership.Join("c1", "conn-b")

	// When alice posts from her first tab
	f.router.Handle(ctx, "conn-a1", frame(t, event.KindNewMessage, message("m1", "c1", "alice", "alice", "bob", "carol")))

	// Then every chat user connection gets it except the source
	d := f.last(t)
	req.Equal(event.KindNewMessage, d.Event.Kind)
	req.ElementsMatch([]domain.ConnectionID{"conn-a2", "conn-b", "conn-c"}, d.Targets)
}

func TestRouter_SelfEcho_None(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t, SelfEchoNone)
	ctx := context.Background()
	f.connect(t, "conn-a1", "alice")
	f.connect(t, "conn-a2", "alice")
	f.connect(t, "conn-b", "bob")
	f.membership.Join("c1", "conn-a1")
	f.membership.Join("c1", "conn-a2")
	f.membership.Join("c1", "conn-b")

	f.router.Handle(ctx, "conn-a1", frame(t, event.KindMessageDeleted, map[string]string{"chatId": "c1", "messageId": "m1"}))

	req.Equal([]domain.ConnectionID{"conn-b"}, f.last(t).Targets)
}

func TestRouter_Message_Mutations(t *testing.T) {
	tests := []struct {
		name string
		kind event.Kind
		data any
	}{
		{name: "Edited", kind: event.KindMessageEdited, data: message("m1", "c1", "alice")},
		{name: "Pinned", kind: event.KindMessagePinned, data: message("m1", "c1", "alice")},
		{name: "Forwarded", kind: event.KindMessageForwarded, data: message("m2", "c1", "alice")},
		{name: "Reaction", kind: event.KindMessageReaction, data: map[string]any{"chatId": "c1", "messageId": "m1", "reactions": []any{}}},
		{name: "Read", kind: event.KindMessageRead, data: map[string]any{"chatId": "c1", "messageId": "m1", "readBy": []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newRouterFixture(t, SelfEchoSessions)
			f.connect(t, "conn-a", "alice")
			f.connect(t, "conn-b", "bob")
			f.membership.Join("c1", "conn-a")
			f.membership.Join("c1", "conn-b")

			f.router.Handle(context.Background(), "conn-a", frame(t, tt.kind, tt.data))

			d := f.last(t)
			req.Equal(tt.kind, d.Event.Kind)
			req.Equal([]domain.ConnectionID{"conn-b"}, d.Targets)
		})
	}
}

func TestRouter_Dispatch_Failure_Is_Swallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	membership := NewMembership()
	registry := NewRegistry(log, membership)
	dispatcher := mocks.NewMockDispatcher(ctrl)
	router := NewRouter(log, RouterConfig{}, registry, membership, dispatcher, nil)

	registry.Connect("conn-1", nopSink{})
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(errors.ErrDispatchTimeout)

	// Then no panic and the connection is still registered
	router.Handle(context.Background(), "conn-1", frame(t, event.KindSetup, map[string]string{"_id": "alice"}))
	require.Equal(t, []domain.ConnectionID{"conn-1"}, registry.ConnectionsFor("alice"))
}
