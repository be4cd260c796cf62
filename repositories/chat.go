//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_repository.go -package=mocks
package repositories

import (
	"chat-live/errors"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IChatRepository interface {
	SaveChat(chat Chat) error
	GetChat(id string) (Chat, error)
	FindDirectChat(userA, userB string) (Chat, bool, error)
	ListChatsForUser(userID string) ([]Chat, error)
}

type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewChatRepository(db *badger.DB, log *slog.Logger) *ChatRepository {
	return &ChatRepository{db: db, log: log}
}

// Chat is the stored representation of a conversation; users and messages are referenced by id.
type Chat struct {
	ID            string    `json:"id"`
	ChatName      string    `json:"chat_name"`
	IsGroupChat   bool      `json:"is_group_chat"`
	Users         []string  `json:"users"`
	GroupAdmin    string    `json:"group_admin,omitempty"`
	LatestMessage string    `json:"latest_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func chatKey(id string) string { return "chat:" + id }

// SaveChat creates or replaces the chat.
func (c *ChatRepository) SaveChat(chat Chat) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, chatKey(chat.ID), chat)
	})
}

func (c *ChatRepository) GetChat(id string) (Chat, error) {
	var chat Chat
	err := c.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, chatKey(id), &chat, errors.ErrChatNotFound)
	})
	return chat, err
}

// FindDirectChat returns the one-to-one chat between both users, if any.
func (c *ChatRepository) FindDirectChat(userA, userB string) (Chat, bool, error) {
	var (
		found Chat
		ok    bool
	)
	err := c.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, "chat:", func(chat Chat) error {
			if ok || chat.IsGroupChat || len(chat.Users) != 2 {
				return nil
			}
			if slices.Contains(chat.Users, userA) && slices.Contains(chat.Users, userB) {
				found, ok = chat, true
			}
			return nil
		})
	})
	return found, ok, err
}

// ListChatsForUser returns the chats of the user, most recently updated first.
func (c *ChatRepository) ListChatsForUser(userID string) ([]Chat, error) {
	var chats []Chat
	err := c.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, "chat:", func(chat Chat) error {
			if slices.Contains(chat.Users, userID) {
				chats = append(chats, chat)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	c.log.Debug("Chats listed", "user_id", userID, "count", len(chats))
	return chats, nil
}
