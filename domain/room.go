package domain

// RoomID identifies a real-time channel. A chat id is used as its room id.
type RoomID string

// ConnectionID identifies one live transport session between a client and the server.
type ConnectionID string

func (r RoomID) String() string { return string(r) }

func (c ConnectionID) String() string { return string(c) }
