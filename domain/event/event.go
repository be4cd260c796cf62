// Package event defines the frames exchanged on the real-time channel.
//
// Every frame is a JSON object {"event": kind, "data": payload}. Inbound frames are
// decoded into one typed variant per kind; outbound frames are encoded once by the
// router and shared by every target connection.
package event

import (
	"bytes"
	"chat-live/domain"
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindSetup            Kind = "setup"
	KindConnected        Kind = "connected"
	KindJoinRoom         Kind = "join-room"
	KindLeaveRoom        Kind = "leave-room"
	KindTyping           Kind = "typing"
	KindStopTyping       Kind = "stop-typing"
	KindNewMessage       Kind = "new-message"
	KindMessageEdited    Kind = "message-edited"
	KindMessageForwarded Kind = "message-forwarded"
	KindMessagePinned    Kind = "message-pinned"
	KindMessageReaction  Kind = "message-reaction"
	KindMessageDeleted   Kind = "message-deleted"
	KindMessageRead      Kind = "message-read"
	KindError            Kind = "error"
)

// IsPresence reports whether the kind is a one-shot typing hint that may be dropped under pressure.
func (k Kind) IsPresence() bool {
	return k == KindTyping || k == KindStopTyping
}

// IsStateChanging reports whether losing the event leaves a client out of sync with the store.
func (k Kind) IsStateChanging() bool {
	switch k {
	case KindNewMessage, KindMessageEdited, KindMessageForwarded, KindMessagePinned,
		KindMessageReaction, KindMessageDeleted, KindMessageRead:
		return true
	}
	return false
}

// Frame is the envelope of every message on the wire.
type Frame struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Event interface {
	Kind() Kind
}

// RoomEvent is an event whose rebroadcast is scoped to a room.
type RoomEvent interface {
	Event
	RoomID() domain.RoomID
}

// MessageEvent carries a full message record and names its sender.
type MessageEvent interface {
	RoomEvent
	SenderID() string
}

type Setup struct {
	UserID string `json:"_id"`
}

func (Setup) Kind() Kind { return KindSetup }

type Connected struct {
	UserID string `json:"_id"`
}

func (Connected) Kind() Kind { return KindConnected }

type Error struct {
	Reason string `json:"reason"`
}

func (Error) Kind() Kind { return KindError }

// roomRef accepts both a bare room id string and an object {"roomId": ...}.
type roomRef struct {
	Room domain.RoomID `json:"roomId"`
}

func (r *roomRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		r.Room = domain.RoomID(id)
		return nil
	}
	var obj struct {
		Room domain.RoomID `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.Room = obj.Room
	return nil
}

func (r roomRef) RoomID() domain.RoomID { return r.Room }

type JoinRoom struct{ roomRef }

func (JoinRoom) Kind() Kind { return KindJoinRoom }

type LeaveRoom struct{ roomRef }

func (LeaveRoom) Kind() Kind { return KindLeaveRoom }

type Typing struct{ roomRef }

func (Typing) Kind() Kind { return KindTyping }

type StopTyping struct{ roomRef }

func (StopTyping) Kind() Kind { return KindStopTyping }

// messageRecord is shared by every event carrying a full message.
type messageRecord struct {
	domain.Message
}

func (m messageRecord) RoomID() domain.RoomID { return domain.RoomID(m.ChatID()) }

func (m messageRecord) SenderID() string { return m.Sender.ID }

type NewMessage struct{ messageRecord }

func (NewMessage) Kind() Kind { return KindNewMessage }

type MessageEdited struct{ messageRecord }

func (MessageEdited) Kind() Kind { return KindMessageEdited }

type MessageForwarded struct{ messageRecord }

func (MessageForwarded) Kind() Kind { return KindMessageForwarded }

type MessagePinned struct{ messageRecord }

func (MessagePinned) Kind() Kind { return KindMessagePinned }

type MessageReaction struct {
	ChatID    string            `json:"chatId"`
	MessageID string            `json:"messageId"`
	Reactions []domain.Reaction `json:"reactions"`
}

func (MessageReaction) Kind() Kind { return KindMessageReaction }

func (m MessageReaction) RoomID() domain.RoomID { return domain.RoomID(m.ChatID) }

type MessageDeleted struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

func (MessageDeleted) Kind() Kind { return KindMessageDeleted }

func (m MessageDeleted) RoomID() domain.RoomID { return domain.RoomID(m.ChatID) }

type MessageRead struct {
	ChatID    string               `json:"chatId"`
	MessageID string               `json:"messageId"`
	ReadBy    []domain.ReadReceipt `json:"readBy"`
}

func (MessageRead) Kind() Kind { return KindMessageRead }

func (m MessageRead) RoomID() domain.RoomID { return domain.RoomID(m.ChatID) }

// NewMessageEvent wraps a persisted message into the event of the given kind.
func NewMessageEvent(kind Kind, m domain.Message) (MessageEvent, error) {
	rec := messageRecord{Message: m}
	switch kind {
	case KindNewMessage:
		return NewMessage{rec}, nil
	case KindMessageEdited:
		return MessageEdited{rec}, nil
	case KindMessageForwarded:
		return MessageForwarded{rec}, nil
	case KindMessagePinned:
		return MessagePinned{rec}, nil
	}
	return nil, fmt.Errorf("kind %q does not carry a message", kind)
}

// Decode turns an inbound frame into its typed variant.
func Decode(f Frame) (Event, error) {
	var (
		e   Event
		err error
	)
	switch f.Event {
	case KindSetup:
		var v Setup
		err = unmarshal(f.Data, &v)
		e = v
	case KindJoinRoom:
		var v JoinRoom
		err = unmarshal(f.Data, &v.roomRef)
		e = v
	case KindLeaveRoom:
		var v LeaveRoom
		err = unmarshal(f.Data, &v.roomRef)
		e = v
	case KindTyping:
		var v Typing
		err = unmarshal(f.Data, &v.roomRef)
		e = v
	case KindStopTyping:
		var v StopTyping
		err = unmarshal(f.Data, &v.roomRef)
		e = v
	case KindNewMessage, KindMessageEdited, KindMessageForwarded, KindMessagePinned:
		var m domain.Message
		if err = unmarshal(f.Data, &m); err == nil {
			e, err = NewMessageEvent(f.Event, m)
		}
	case KindMessageReaction:
		var v MessageReaction
		err = unmarshal(f.Data, &v)
		e = v
	case KindMessageDeleted:
		var v MessageDeleted
		err = unmarshal(f.Data, &v)
		e = v
	case KindMessageRead:
		var v MessageRead
		err = unmarshal(f.Data, &v)
		e = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", f.Event, err)
	}
	return e, nil
}

func unmarshal(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(data, v)
}

// Outbound is an encoded frame ready to be written to any number of connections.
type Outbound struct {
	Kind Kind
	Body []byte
	At   time.Time
}

func NewOutbound(e Event) (Outbound, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Outbound{}, err
	}
	body, err := json.Marshal(Frame{Event: e.Kind(), Data: data})
	if err != nil {
		return Outbound{}, err
	}
	return Outbound{Kind: e.Kind(), Body: body, At: time.Now()}, nil
}

// Delivery is one routed event with the connections it must reach.
type Delivery struct {
	Event   Outbound
	Room    domain.RoomID
	Targets []domain.ConnectionID
}
