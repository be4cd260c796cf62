package runtime

import (
	"chat-live/contract"
	"chat-live/domain"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

// Registry is the directory of live connections.
// A connection is addressable from Connect on, and belongs to a user once Register binds it.
type Registry struct {
	log        *slog.Logger
	membership contract.IMembership

	mu       sync.RWMutex
	sinks    map[domain.ConnectionID]contract.EventSink // connection -> outbound sink
	owners   map[domain.ConnectionID]string             // connection -> user
	sessions map[string]Set[domain.ConnectionID]        // user -> connections
}

func NewRegistry(log *slog.Logger, membership contract.IMembership) *Registry {
	return &Registry{
		log:        log,
		membership: membership,
		sinks:      make(map[domain.ConnectionID]contract.EventSink),
		owners:     make(map[domain.ConnectionID]string),
		sessions:   make(map[string]Set[domain.ConnectionID]),
	}
}

func (r *Registry) Connect(connID domain.ConnectionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[connID] = sink
}

// Register binds the connection to a user.
// Binding again to another user moves the connection, other connections are untouched.
func (r *Registry) Register(connID domain.ConnectionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.owners[connID]; ok {
		if previous == userID {
			return
		}
		r.detach(previous, connID)
	}
	r.owners[connID] = userID
	if _, ok := r.sessions[userID]; !ok {
		r.sessions[userID] = make(Set[domain.ConnectionID])
	}
	r.sessions[userID][connID] = struct{}{}
}

// Unregister forgets the connection and removes it from every room.
// Unknown ids are ignored.
func (r *Registry) Unregister(connID domain.ConnectionID) {
	r.mu.Lock()
	delete(r.sinks, connID)
	userID, bound := r.owners[connID]
	if bound {
		r.detach(userID, connID)
		delete(r.owners, connID)
	}
	r.mu.Unlock()

	// Membership has its own lock, never taken while holding ours
	rooms := r.membership.LeaveAll(connID)
	r.log.Debug("Connection unregistered", "conn_id", connID, "user_id", userID, "rooms", len(rooms))
}

func (r *Registry) detach(userID string, connID domain.ConnectionID) {
	conns, ok := r.sessions[userID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.sessions, userID)
	}
}

// ConnectionsFor returns every connection of the user, empty when the user is offline.
func (r *Registry) ConnectionsFor(userID string) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions[userID])
}

func (r *Registry) UserOf(connID domain.ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owners[connID]
	return userID, ok
}

func (r *Registry) Sink(connID domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[connID]
	return sink, ok
}

// Count returns the number of open connections, bound or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
