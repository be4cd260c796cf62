package runtime

import (
	"chat-live/domain"
	"chat-live/domain/event"
	"context"
	"log/slog"
)

type roomBroadcaster interface {
	Broadcast(ctx context.Context, source domain.ConnectionID, userID string, e event.RoomEvent, users ...string)
}

// Presence forwards typing hints to the other members of a room.
// Nothing is retained: a client that missed a "stop-typing" clears its indicator on its own.
type Presence struct {
	log         *slog.Logger
	broadcaster roomBroadcaster
}

func NewPresence(log *slog.Logger, broadcaster roomBroadcaster) *Presence {
	return &Presence{log: log, broadcaster: broadcaster}
}

func (p *Presence) Forward(ctx context.Context, source domain.ConnectionID, userID string, e event.RoomEvent) {
	if !e.Kind().IsPresence() {
		p.log.Debug("Not a presence signal", "kind", e.Kind(), "conn_id", source)
		return
	}
	p.broadcaster.Broadcast(ctx, source, userID, e)
}
