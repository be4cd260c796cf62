package runtime

import (
	"chat-live/contract"
	"chat-live/domain"
	"chat-live/domain/event"
	"chat-live/observability"
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// SelfEcho decides whether the other connections of a sender receive its events.
type SelfEcho string

const (
	SelfEchoSessions SelfEcho = "sessions"
	SelfEchoNone     SelfEcho = "none"
)

type RouterConfig struct {
	SelfEcho        SelfEcho
	DispatchTimeout time.Duration
}

// Router validates inbound frames, computes their targets and hands them to the dispatcher.
// It never returns an error to the connection loop: bad input is logged and dropped.
type Router struct {
	log        *slog.Logger
	cfg        RouterConfig
	registry   contract.IRegistry
	membership contract.IMembership
	dispatcher contract.Dispatcher
	presence   *Presence
	metrics    *observability.Metrics
}

func NewRouter(
	log *slog.Logger,
	cfg RouterConfig,
	registry contract.IRegistry,
	membership contract.IMembership,
	dispatcher contract.Dispatcher,
	metrics *observability.Metrics,
) *Router {
	if cfg.SelfEcho == "" {
		cfg.SelfEcho = SelfEchoSessions
	}
	r := &Router{
		log:        log,
		cfg:        cfg,
		registry:   registry,
		membership: membership,
		dispatcher: dispatcher,
		metrics:    metrics,
	}
	r.presence = NewPresence(log, r)
	return r
}

func (r *Router) Handle(ctx context.Context, source domain.ConnectionID, f event.Frame) {
	e, err := event.Decode(f)
	if err != nil {
		r.drop(string(f.Event), "decode", source, "error", err)
		return
	}

	if setup, ok := e.(event.Setup); ok {
		r.setup(ctx, source, setup)
		return
	}

	userID, ok := r.registry.UserOf(source)
	if !ok {
		r.drop(string(e.Kind()), "no_setup", source)
		return
	}

	roomEvent, ok := e.(event.RoomEvent)
	if !ok {
		r.drop(string(e.Kind()), "not_routable", source)
		return
	}
	roomID := roomEvent.RoomID()
	if roomID == "" {
		r.drop(string(e.Kind()), "missing_room", source)
		return
	}
	r.metrics.Routed(string(e.Kind()))

	switch v := e.(type) {
	case event.JoinRoom:
		r.membership.Join(roomID, source)
		r.log.Debug("Joined room", "conn_id", source, "user_id", userID, "room_id", roomID)
	case event.LeaveRoom:
		r.membership.Leave(roomID, source)
		r.log.Debug("Left room", "conn_id", source, "user_id", userID, "room_id", roomID)
	case event.Typing, event.StopTyping:
		r.presence.Forward(ctx, source, userID, roomEvent)
	case event.NewMessage:
		if !r.isSender(v, userID, source) {
			return
		}
		var members []string
		if v.Chat != nil {
			members = v.Chat.UserIDs()
		}
		r.Broadcast(ctx, source, userID, v, members...)
	case event.MessageEvent:
		if !r.isSender(v, userID, source) {
			return
		}
		r.Broadcast(ctx, source, userID, v)
	default:
		r.Broadcast(ctx, source, userID, roomEvent)
	}
}

func (r *Router) setup(ctx context.Context, source domain.ConnectionID, setup event.Setup) {
	if setup.UserID == "" {
		r.drop(string(setup.Kind()), "missing_user", source)
		return
	}
	if bound, ok := r.registry.UserOf(source); ok && bound != setup.UserID {
		r.log.Warn("Connection already bound to another user",
			"conn_id", source, "user_id", bound, "requested", setup.UserID)
		r.deliver(ctx, event.Error{Reason: "connection already set up"}, "", []domain.ConnectionID{source})
		return
	}
	r.registry.Register(source, setup.UserID)
	r.metrics.Routed(string(setup.Kind()))
	r.log.Debug("Connection set up", "conn_id", source, "user_id", setup.UserID)
	r.deliver(ctx, event.Connected{UserID: setup.UserID}, "", []domain.ConnectionID{source})
}

func (r *Router) isSender(e event.MessageEvent, userID string, source domain.ConnectionID) bool {
	if e.SenderID() == userID {
		return true
	}
	r.drop(string(e.Kind()), "sender_mismatch", source, "user_id", userID, "sender_id", e.SenderID())
	return false
}

// Broadcast sends the event to the room members and to every connection of the given users.
// The source connection never gets its own event back.
func (r *Router) Broadcast(ctx context.Context, source domain.ConnectionID, userID string, e event.RoomEvent, users ...string) {
	targets := r.targets(e.RoomID(), source, userID, users)
	if len(targets) == 0 {
		r.log.Debug("No recipient online", "kind", e.Kind(), "room_id", e.RoomID())
		return
	}
	r.deliver(ctx, e, e.RoomID(), targets)
}

func (r *Router) targets(roomID domain.RoomID, source domain.ConnectionID, userID string, users []string) []domain.ConnectionID {
	targets := r.membership.MembersOf(roomID)
	for _, u := range users {
		targets = append(targets, r.registry.ConnectionsFor(u)...)
	}
	excluded := []domain.ConnectionID{source}
	if r.cfg.SelfEcho == SelfEchoNone {
		excluded = append(excluded, r.registry.ConnectionsFor(userID)...)
	}
	return lo.Without(lo.Uniq(targets), excluded...)
}

func (r *Router) deliver(ctx context.Context, e event.Event, roomID domain.RoomID, targets []domain.ConnectionID) {
	out, err := event.NewOutbound(e)
	if err != nil {
		r.log.Error("Unable to encode event", "kind", e.Kind(), "error", err)
		return
	}
	if r.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DispatchTimeout)
		defer cancel()
	}
	err = r.dispatcher.Dispatch(ctx, event.Delivery{Event: out, Room: roomID, Targets: targets})
	if err != nil {
		r.metrics.Dropped(string(e.Kind()), "dispatch")
		r.log.Warn("Event not dispatched", "kind", e.Kind(), "room_id", roomID, "targets", len(targets), "error", err)
	}
}

func (r *Router) drop(kind, reason string, source domain.ConnectionID, args ...any) {
	r.metrics.Dropped(kind, reason)
	r.log.Debug("Dropping inbound event", append([]any{"kind", kind, "reason", reason, "conn_id", source}, args...)...)
}
