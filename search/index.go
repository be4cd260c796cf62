// Package search keeps a full-text index of message contents next to the badger store.
package search

import (
	"chat-live/domain"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	idField      = "_id"
	contentField = "content"
	chatField    = "chat"
)

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Open opens an index stored on disk at path, or an in-memory index when path is empty.
func Open(path string, log *slog.Logger) (*MessageIndex, error) {
	cfg := bluge.InMemoryOnlyConfig()
	if path != "" {
		cfg = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return NewMessageIndex(writer, log), nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

// Index adds or replaces the document of the message.
func (i *MessageIndex) Index(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID).
		AddField(bluge.NewTextField(contentField, msg.Content)).
		AddField(bluge.NewKeywordField(chatField, msg.ChatID()))
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", msg.ID, err)
	}
	return nil
}

func (i *MessageIndex) Remove(messageID string) error {
	if err := i.writer.Delete(bluge.Identifier(messageID)); err != nil {
		return fmt.Errorf("unindex message %s: %w", messageID, err)
	}
	return nil
}

// Search returns the ids of the best matching messages.
// A non-nil chatIDs keeps only messages of those chats, and an empty one matches nothing.
func (i *MessageIndex) Search(ctx context.Context, query string, chatIDs []string, limit int) ([]string, error) {
	if chatIDs != nil && len(chatIDs) == 0 {
		return nil, nil
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("open reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Unable to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(strings.TrimSpace(query)).SetField(contentField))
	if chatIDs != nil {
		chats := bluge.NewBooleanQuery().SetMinShould(1)
		for _, chatID := range chatIDs {
			chats.AddShould(bluge.NewTermQuery(chatID).SetField(chatField))
		}
		q.AddMust(chats)
	}

	it, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	var ids []string
	match, err := it.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == idField {
				ids = append(ids, string(value))
				return false
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = it.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return ids, nil
}
