//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-live/domain"
	"chat-live/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	StoreMessage(message Message) error
	GetMessage(id string) (Message, error)
	GetMessages(chatID string, cursor *string) ([]Message, *string, error)
	UpdateMessage(id string, apply func(*Message) error) (Message, error)
	DeleteMessage(id string) error
}

// maxUpdateAttempts bounds the retries of a conflicting UpdateMessage.
const maxUpdateAttempts = 128

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

// NewMessageRepository builds the repository. A nil limitMessages returns whole histories.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// Message is the stored representation of a chat message; sender and chat are referenced by id.
type Message struct {
	ID            string               `json:"id"`
	Sender        string               `json:"sender"`
	Content       string               `json:"content"`
	Chat          string               `json:"chat"`
	IsFile        bool                 `json:"is_file"`
	FileType      string               `json:"file_type,omitempty"`
	Reactions     []domain.Reaction    `json:"reactions,omitempty"`
	Edited        bool                 `json:"edited"`
	EditHistory   []domain.Edit        `json:"edit_history,omitempty"`
	ForwardedFrom string               `json:"forwarded_from,omitempty"`
	IsPinned      bool                 `json:"is_pinned"`
	PinnedBy      *string              `json:"pinned_by,omitempty"`
	ReadBy        []domain.ReadReceipt `json:"read_by,omitempty"`
	Lang          string               `json:"lang,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func messageKey(id string) string { return "msg:" + id }

func roomPrefix(chatID string) string { return fmt.Sprintf("room:%s:", chatID) }

// roomKey is formatted as "room:{chat_id}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using the id as a collision disconnector if two messages
//     arrive at the same nanosecond.
func roomKey(m Message) string {
	return fmt.Sprintf("%s%019d:%s", roomPrefix(m.Chat), m.CreatedAt.UnixNano(), m.ID)
}

// StoreMessage creates or updates a message and its entry in the chat index.
func (m *MessageRepository) StoreMessage(message Message) error {
	return m.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, messageKey(message.ID), message); err != nil {
			return err
		}
		return txn.Set([]byte(roomKey(message)), []byte(message.ID))
	})
}

func (m *MessageRepository) GetMessage(id string) (Message, error) {
	var message Message
	err := m.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, messageKey(id), &message, errors.ErrMessageNotFound)
	})
	return message, err
}

// UpdateMessage loads, changes and stores the message inside one transaction.
// The transaction is replayed when a concurrent update wins the commit, so apply may run more than once.
func (m *MessageRepository) UpdateMessage(id string, apply func(*Message) error) (Message, error) {
	var message Message
	for attempt := 1; ; attempt++ {
		err := m.db.Update(func(txn *badger.Txn) error {
			message = Message{}
			if err := getJSON(txn, messageKey(id), &message, errors.ErrMessageNotFound); err != nil {
				return err
			}
			if err := apply(&message); err != nil {
				return err
			}
			return setJSON(txn, messageKey(id), message)
		})
		if stderrors.Is(err, badger.ErrConflict) && attempt < maxUpdateAttempts {
			m.log.Debug("Message update conflicted, retrying", "message_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return Message{}, err
		}
		return message, nil
	}
}

// GetMessages walks the chat index backwards from the cursor, newest first,
// and returns the page oldest first with the cursor of its oldest entry.
// It stops collecting messages once the configured limitMessages is reached;
// the returned cursor is nil when no older message is left.
func (m *MessageRepository) GetMessages(chatID string, cursor *string) ([]Message, *string, error) {
	var messages []Message
	var lastKey string
	more := false
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := roomPrefix(chatID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start after the newest possible key: room:{chat}:9999999999999999999
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				more = true
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var message Message
			if err := getJSON(txn, messageKey(string(id)), &message, errors.ErrMessageNotFound); err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !more {
		return lo.Reverse(messages), nil, nil
	}
	return lo.Reverse(messages), &lastKey, nil
}

// DeleteMessage removes the message and its index entry.
func (m *MessageRepository) DeleteMessage(id string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		var message Message
		if err := getJSON(txn, messageKey(id), &message, errors.ErrMessageNotFound); err != nil {
			return err
		}
		if err := txn.Delete([]byte(roomKey(message))); err != nil {
			return err
		}
		return txn.Delete([]byte(messageKey(id)))
	})
}
