//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-live/domain"
	"chat-live/domain/event"
	"context"
	"io"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives the outbound events addressed to a single connection.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// IRegistry maps connections to users and to their outbound sink.
type IRegistry interface {
	Connect(connID domain.ConnectionID, sink EventSink)
	Register(connID domain.ConnectionID, userID string)
	Unregister(connID domain.ConnectionID)
	ConnectionsFor(userID string) []domain.ConnectionID
	UserOf(connID domain.ConnectionID) (string, bool)
	Sink(connID domain.ConnectionID) (EventSink, bool)
	Count() int
}

// IMembership tracks which connections have joined which rooms.
type IMembership interface {
	Join(roomID domain.RoomID, connID domain.ConnectionID)
	Leave(roomID domain.RoomID, connID domain.ConnectionID)
	LeaveAll(connID domain.ConnectionID) []domain.RoomID
	MembersOf(roomID domain.RoomID) []domain.ConnectionID
	RoomsOf(connID domain.ConnectionID) []domain.RoomID
	RoomCount() int
}

// Dispatcher hands a routed event over to the fan-out worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, d event.Delivery) error
}

type StoredFile struct {
	Name string
	URL  string
	Ext  string
	Mime string
	Size int64
}

// FileStore keeps uploaded files.
type FileStore interface {
	Save(originalName string, r io.Reader) (StoredFile, error)
	Remove(url string) error
}

// MessageIndex is the full-text index of message contents.
type MessageIndex interface {
	Index(msg domain.Message) error
	Remove(messageID string) error
	// Search restricts matches to chatIDs; a nil slice searches every chat.
	Search(ctx context.Context, query string, chatIDs []string, limit int) ([]string, error)
}

// Moderator censors message contents and detects their language.
type Moderator interface {
	Moderate(content string) (censored string, lang string)
}
