package services

import (
	"chat-live/contract"
	"chat-live/domain"
	"chat-live/errors"
	"chat-live/repositories"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const searchLimit = 50

// errUnchanged aborts an update that would not modify the message.
var errUnchanged = stderrors.New("message unchanged")

type IMessageService interface {
	SendMessage(senderID, chatID, content string) (domain.Message, error)
	SendFile(senderID, chatID, filename string, r io.Reader) (domain.Message, error)
	AllMessages(chatID string, cursor *string) ([]domain.Message, *string, error)
	DeleteMessage(callerID, messageID string) (domain.Message, error)
	ToggleReaction(callerID, messageID, emoji string) (domain.Message, error)
	EditMessage(callerID, messageID, content string) (domain.Message, error)
	ForwardMessage(callerID, messageID, targetChatID string) (domain.Message, error)
	TogglePin(callerID, messageID string) (domain.Message, error)
	MarkAsRead(callerID, messageID string) (domain.Message, error)
	SearchMessages(ctx context.Context, callerID, query, chatID string) ([]domain.Message, error)
}

type MessageService struct {
	log       *slog.Logger
	chats     repositories.IChatRepository
	messages  repositories.IMessageRepository
	hydrator  hydrator
	files     contract.FileStore
	index     contract.MessageIndex
	moderator contract.Moderator
	now       func() time.Time
}

func NewMessageService(
	log *slog.Logger,
	users repositories.IUserRepository,
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	files contract.FileStore,
	index contract.MessageIndex,
	moderator contract.Moderator,
) *MessageService {
	return &MessageService{
		log:       log,
		chats:     chats,
		messages:  messages,
		hydrator:  hydrator{users: users, chats: chats, messages: messages},
		files:     files,
		index:     index,
		moderator: moderator,
		now:       time.Now,
	}
}

// SendMessage persists a text message and makes it the latest message of its chat.
func (s *MessageService) SendMessage(senderID, chatID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" || chatID == "" {
		return domain.Message{}, fmt.Errorf("%w: content and chatId are required", errors.ErrValidation)
	}
	content, lang := s.moderator.Moderate(content)
	return s.create(repositories.Message{
		Sender:  senderID,
		Content: content,
		Chat:    chatID,
		Lang:    lang,
	})
}

// SendFile stores the upload and persists a file message pointing to it.
// The stored file is removed again when the message cannot be created.
func (s *MessageService) SendFile(senderID, chatID, filename string, r io.Reader) (domain.Message, error) {
	if chatID == "" {
		return domain.Message{}, fmt.Errorf("%w: chatId is required", errors.ErrValidation)
	}
	if _, err := s.chats.GetChat(chatID); err != nil {
		return domain.Message{}, err
	}
	stored, err := s.files.Save(filename, r)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := s.create(repositories.Message{
		Sender:   senderID,
		Content:  stored.URL,
		Chat:     chatID,
		IsFile:   true,
		FileType: stored.Ext,
	})
	if err != nil {
		if rmErr := s.files.Remove(stored.URL); rmErr != nil {
			s.log.Warn("Unable to remove orphan upload", "url", stored.URL, "error", rmErr)
		}
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *MessageService) create(m repositories.Message) (domain.Message, error) {
	chat, err := s.chats.GetChat(m.Chat)
	if err != nil {
		return domain.Message{}, err
	}
	now := s.now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := s.messages.StoreMessage(m); err != nil {
		return domain.Message{}, fmt.Errorf("store message: %w", err)
	}

	chat.LatestMessage = m.ID
	chat.UpdatedAt = now
	if err := s.chats.SaveChat(chat); err != nil {
		return domain.Message{}, fmt.Errorf("update latest message: %w", err)
	}

	msg, err := s.hydrator.message(m)
	if err != nil {
		return domain.Message{}, err
	}
	s.indexMessage(msg)
	s.log.Debug("Message created", "message_id", m.ID, "chat_id", m.Chat, "is_file", m.IsFile)
	return msg, nil
}

// AllMessages returns the chat history oldest first.
func (s *MessageService) AllMessages(chatID string, cursor *string) ([]domain.Message, *string, error) {
	c, err := s.chats.GetChat(chatID)
	if err != nil {
		return nil, nil, err
	}
	chat, err := s.hydrator.chatMembers(c)
	if err != nil {
		return nil, nil, err
	}
	records, next, err := s.messages.GetMessages(chatID, cursor)
	if err != nil {
		return nil, nil, fmt.Errorf("get messages: %w", err)
	}
	messages := make([]domain.Message, 0, len(records))
	for _, r := range records {
		msg, err := s.hydrator.messageWith(r, &chat)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	return messages, next, nil
}

// DeleteMessage removes a message sent by the caller, with its uploaded file.
func (s *MessageService) DeleteMessage(callerID, messageID string) (domain.Message, error) {
	msg, err := s.load(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if !msg.IsSentBy(callerID) {
		return domain.Message{}, fmt.Errorf("%w: You can only delete your own messages", errors.ErrUnauthorized)
	}
	if err := s.messages.DeleteMessage(messageID); err != nil {
		return domain.Message{}, fmt.Errorf("delete message: %w", err)
	}
	if msg.IsFile {
		if err := s.files.Remove(msg.Content); err != nil {
			s.log.Warn("Unable to remove uploaded file", "message_id", messageID, "error", err)
		}
	}
	if err := s.index.Remove(messageID); err != nil {
		s.log.Warn("Unable to unindex message", "message_id", messageID, "error", err)
	}
	s.clearLatest(msg)
	return msg, nil
}

func (s *MessageService) clearLatest(msg domain.Message) {
	chat, err := s.chats.GetChat(msg.ChatID())
	if err != nil || chat.LatestMessage != msg.ID {
		return
	}
	chat.LatestMessage = ""
	if err := s.chats.SaveChat(chat); err != nil {
		s.log.Warn("Unable to clear latest message", "chat_id", chat.ID, "error", err)
	}
}

func (s *MessageService) ToggleReaction(callerID, messageID, emoji string) (domain.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return domain.Message{}, fmt.Errorf("%w: reaction is required", errors.ErrValidation)
	}
	return s.mutate(messageID, func(m *domain.Message, _ time.Time) error {
		m.ToggleReaction(callerID, emoji)
		return nil
	})
}

func (s *MessageService) EditMessage(callerID, messageID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, fmt.Errorf("%w: content is required", errors.ErrValidation)
	}
	msg, err := s.mutate(messageID, func(m *domain.Message, now time.Time) error {
		if !m.IsSentBy(callerID) {
			return fmt.Errorf("%w: You can only edit your own messages", errors.ErrForbidden)
		}
		censored, lang := s.moderator.Moderate(content)
		m.Edit(censored, now)
		m.Lang = lang
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.indexMessage(msg)
	return msg, nil
}

// ForwardMessage copies the message into the target chat on behalf of the caller.
func (s *MessageService) ForwardMessage(callerID, messageID, targetChatID string) (domain.Message, error) {
	if targetChatID == "" {
		return domain.Message{}, fmt.Errorf("%w: targetChatId is required", errors.ErrValidation)
	}
	original, err := s.messages.GetMessage(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	return s.create(repositories.Message{
		Sender:        callerID,
		Content:       original.Content,
		Chat:          targetChatID,
		IsFile:        original.IsFile,
		FileType:      original.FileType,
		ForwardedFrom: original.ID,
		Lang:          original.Lang,
	})
}

func (s *MessageService) TogglePin(callerID, messageID string) (domain.Message, error) {
	return s.mutate(messageID, func(m *domain.Message, _ time.Time) error {
		m.TogglePin(callerID)
		return nil
	})
}

// MarkAsRead records the caller in readBy; reading twice changes nothing.
func (s *MessageService) MarkAsRead(callerID, messageID string) (domain.Message, error) {
	msg, err := s.mutate(messageID, func(m *domain.Message, now time.Time) error {
		if !m.MarkRead(callerID, now) {
			return errUnchanged
		}
		return nil
	})
	if stderrors.Is(err, errUnchanged) {
		return s.load(messageID)
	}
	return msg, err
}

// SearchMessages runs a full-text query over the caller's chats, or over chatID only when set.
// A chat the caller does not belong to is reported as not found.
func (s *MessageService) SearchMessages(ctx context.Context, callerID, query, chatID string) ([]domain.Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: q is required", errors.ErrValidation)
	}
	chats, err := s.chats.ListChatsForUser(callerID)
	if err != nil {
		return nil, fmt.Errorf("list chats of %s: %w", callerID, err)
	}
	chatIDs := lo.Map(chats, func(c repositories.Chat, _ int) string { return c.ID })
	if chatID != "" {
		if !lo.Contains(chatIDs, chatID) {
			return nil, fmt.Errorf("%w: %s", errors.ErrChatNotFound, chatID)
		}
		chatIDs = []string{chatID}
	}
	messages := make([]domain.Message, 0)
	if len(chatIDs) == 0 {
		return messages, nil
	}
	ids, err := s.index.Search(ctx, query, chatIDs, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	for _, id := range ids {
		msg, err := s.load(id)
		if stderrors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *MessageService) load(messageID string) (domain.Message, error) {
	r, err := s.messages.GetMessage(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	return s.hydrator.message(r)
}

// mutate applies the change to the stored message in a single transaction.
func (s *MessageService) mutate(messageID string, apply func(m *domain.Message, now time.Time) error) (domain.Message, error) {
	stored, err := s.messages.UpdateMessage(messageID, func(r *repositories.Message) error {
		msg := detached(*r)
		now := s.now().UTC()
		if err := apply(&msg, now); err != nil {
			return err
		}
		msg.UpdatedAt = now
		*r = record(msg)
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return s.hydrator.message(stored)
}

func (s *MessageService) indexMessage(msg domain.Message) {
	if msg.IsFile {
		return
	}
	if err := s.index.Index(msg); err != nil {
		s.log.Warn("Unable to index message", "message_id", msg.ID, "error", err)
	}
}
