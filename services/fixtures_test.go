package services

import (
	"chat-live/repositories"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type store struct {
	db       *badger.DB
	users    *repositories.UserRepository
	chats    *repositories.ChatRepository
	messages *repositories.MessageRepository
}

func newStore(t *testing.T) store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return store{
		db:       db,
		users:    repositories.NewUserRepository(db),
		chats:    repositories.NewChatRepository(db, log),
		messages: repositories.NewMessageRepository(db, log, nil),
	}
}

func (s store) seedUsers(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, s.users.CreateUser(repositories.User{
			ID:        name,
			Name:      name,
			Email:     name + "@example.com",
			CreatedAt: time.Now().UTC(),
		}))
	}
}

// clock returns increasing instants so that ordering by time is deterministic.
func clock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
