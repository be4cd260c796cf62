package repositories

import (
	"chat-live/domain"
	"chat-live/errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func messagesOf(chatID string, at time.Time, authors ...string) []Message {
	return lo.Map(authors, func(author string, i int) Message {
		return Message{
			ID:        uuid.NewString(),
			Sender:    author,
			Chat:      chatID,
			Content:   "this message will self destruct in 5 seconds",
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
			UpdatedAt: at.Add(time.Duration(i) * time.Minute),
		}
	})
}

func Test_Record_Multiple_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	at := time.Now().UTC()
	messages := messagesOf("C1", at, "Alice", "Bob", "Clara")

	// Given messages stored out of order, and one in another chat
	for _, m := range []Message{messages[2], messages[0], messages[1]} {
		req.NoError(repository.StoreMessage(m))
	}
	req.NoError(repository.StoreMessage(messagesOf("C2", at, "Dan")[0]))

	// When the chat history is fetched
	fetched, cursor, err := repository.GetMessages("C1", nil)

	// Then it is returned oldest first and only for that chat
	req.NoError(err)
	req.Equal(messages, fetched)
	req.Nil(cursor)
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), &limit)
	messages := messagesOf("C1", time.Now().UTC(), "Alice", "Bob", "Clara")
	for _, m := range messages {
		req.NoError(repository.StoreMessage(m))
	}

	// When the newest page is fetched
	page, cursor, err := repository.GetMessages("C1", nil)
	req.NoError(err)
	req.Equal(messages[1:], page)
	req.NotNil(cursor)

	// Then the cursor gives the remaining older message and ends the history
	page, cursor, err = repository.GetMessages("C1", cursor)
	req.NoError(err)
	req.Equal(messages[:1], page)
	req.Nil(cursor)
}

func Test_Update_And_Delete_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	message := messagesOf("C1", time.Now().UTC(), "Alice")[0]
	req.NoError(repository.StoreMessage(message))

	// When the message is updated in place
	message.Content = "edited"
	message.Edited = true
	req.NoError(repository.StoreMessage(message))

	// Then the history still holds one message
	fetched, _, err := repository.GetMessages("C1", nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("edited", fetched[0].Content)

	// When it is deleted
	req.NoError(repository.DeleteMessage(message.ID))

	// Then it is gone from the store and the index
	_, err = repository.GetMessage(message.ID)
	req.ErrorIs(err, errors.ErrMessageNotFound)
	req.ErrorIs(err, errors.ErrNotFound)
	fetched, _, err = repository.GetMessages("C1", nil)
	req.NoError(err)
	req.Empty(fetched)

	req.ErrorIs(repository.DeleteMessage(message.ID), errors.ErrMessageNotFound)
}

func Test_Update_Message_Concurrently(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	message := messagesOf("C1", time.Now().UTC(), "Alice")[0]
	req.NoError(repository.StoreMessage(message))

	// When 20 writers append a receipt each
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repository.UpdateMessage(message.ID, func(m *Message) error {
				m.ReadBy = append(m.ReadBy, domain.ReadReceipt{User: fmt.Sprintf("user-%d", i)})
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	// Then every receipt is stored
	stored, err := repository.GetMessage(message.ID)
	req.NoError(err)
	req.Len(stored.ReadBy, 20)

	_, err = repository.UpdateMessage("unknown", func(*Message) error { return nil })
	req.ErrorIs(err, errors.ErrMessageNotFound)
}
