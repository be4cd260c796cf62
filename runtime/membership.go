package runtime

import (
	"chat-live/domain"
	"sync"

	"github.com/samber/lo"
)

type Set[K comparable] map[K]struct{}

// Membership keeps the connection-scoped room sets.
// A user with two connections in the same room is counted twice.
type Membership struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]Set[domain.ConnectionID] // room -> joined connections
	joined map[domain.ConnectionID]Set[domain.RoomID] // connection -> joined rooms
}

func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[domain.RoomID]Set[domain.ConnectionID]),
		joined: make(map[domain.ConnectionID]Set[domain.RoomID]),
	}
}

// Join adds the connection to the room. Joining twice is a no-op.
func (m *Membership) Join(roomID domain.RoomID, connID domain.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomID]; !ok {
		m.rooms[roomID] = make(Set[domain.ConnectionID])
	}
	m.rooms[roomID][connID] = struct{}{}

	if _, ok := m.joined[connID]; !ok {
		m.joined[connID] = make(Set[domain.RoomID])
	}
	m.joined[connID][roomID] = struct{}{}
}

// Leave removes the connection from the room.
// Empty rooms are removed so the map doesn't grow with every chat ever opened.
func (m *Membership) Leave(roomID domain.RoomID, connID domain.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leave(roomID, connID)
}

// LeaveAll removes the connection from every room it joined and returns those rooms.
func (m *Membership) LeaveAll(connID domain.ConnectionID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := lo.Keys(m.joined[connID])
	for _, roomID := range rooms {
		m.leave(roomID, connID)
	}
	return rooms
}

func (m *Membership) leave(roomID domain.RoomID, connID domain.ConnectionID) {
	if members, ok := m.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	if rooms, ok := m.joined[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.joined, connID)
		}
	}
}

// MembersOf returns a snapshot of the connections joined to the room.
func (m *Membership) MembersOf(roomID domain.RoomID) []domain.ConnectionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.rooms[roomID])
}

func (m *Membership) RoomsOf(connID domain.ConnectionID) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.joined[connID])
}

func (m *Membership) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
