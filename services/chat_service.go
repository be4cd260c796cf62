package services

import (
	"chat-live/domain"
	"chat-live/errors"
	"chat-live/repositories"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const directChatName = "sender"

var (
	errMissingGroupFields = fmt.Errorf("%w: Please fill all the fields", errors.ErrValidation)
	errGroupTooSmall      = fmt.Errorf("%w: More than 2 users are required to form a group", errors.ErrValidation)
)

type IChatService interface {
	AccessChat(callerID, userID string) (domain.Chat, error)
	FetchChats(callerID string) ([]domain.Chat, error)
	CreateGroup(callerID, name string, userIDs []string) (domain.Chat, error)
	RenameGroup(chatID, name string) (domain.Chat, error)
	AddToGroup(chatID, userID string) (domain.Chat, error)
	RemoveFromGroup(chatID, userID string) (domain.Chat, error)
}

type ChatService struct {
	log      *slog.Logger
	users    repositories.IUserRepository
	chats    repositories.IChatRepository
	hydrator hydrator
	now      func() time.Time
}

func NewChatService(
	log *slog.Logger,
	users repositories.IUserRepository,
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
) *ChatService {
	return &ChatService{
		log:      log,
		users:    users,
		chats:    chats,
		hydrator: hydrator{users: users, chats: chats, messages: messages},
		now:      time.Now,
	}
}

// AccessChat returns the one-to-one chat between the caller and userID, creating it on first access.
func (s *ChatService) AccessChat(callerID, userID string) (domain.Chat, error) {
	if userID == "" {
		return domain.Chat{}, fmt.Errorf("%w: userId param not sent with request", errors.ErrValidation)
	}
	if _, err := s.users.GetUser(userID); err != nil {
		return domain.Chat{}, err
	}

	existing, found, err := s.chats.FindDirectChat(callerID, userID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("find direct chat: %w", err)
	}
	if found {
		return s.hydrator.chat(existing)
	}

	now := s.now().UTC()
	chat := repositories.Chat{
		ID:        uuid.NewString(),
		ChatName:  directChatName,
		Users:     []string{callerID, userID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chats.SaveChat(chat); err != nil {
		return domain.Chat{}, fmt.Errorf("save chat: %w", err)
	}
	s.log.Debug("Direct chat created", "chat_id", chat.ID, "user_id", callerID)
	return s.hydrator.chat(chat)
}

func (s *ChatService) FetchChats(callerID string) ([]domain.Chat, error) {
	records, err := s.chats.ListChatsForUser(callerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	chats := make([]domain.Chat, 0, len(records))
	for _, r := range records {
		chat, err := s.hydrator.chat(r)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// CreateGroup creates a group of the given users plus the caller, who becomes its admin.
func (s *ChatService) CreateGroup(callerID, name string, userIDs []string) (domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" || userIDs == nil {
		return domain.Chat{}, errMissingGroupFields
	}
	others := lo.Without(lo.Uniq(userIDs), callerID)
	if len(others) < 2 {
		return domain.Chat{}, errGroupTooSmall
	}
	members := append(others, callerID)
	if _, err := s.users.GetUsers(members); err != nil {
		return domain.Chat{}, err
	}

	now := s.now().UTC()
	chat := repositories.Chat{
		ID:          uuid.NewString(),
		ChatName:    name,
		IsGroupChat: true,
		Users:       members,
		GroupAdmin:  callerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.chats.SaveChat(chat); err != nil {
		return domain.Chat{}, fmt.Errorf("save group: %w", err)
	}
	s.log.Info("Group created", "chat_id", chat.ID, "members", len(members))
	return s.hydrator.chat(chat)
}

func (s *ChatService) RenameGroup(chatID, name string) (domain.Chat, error) {
	name = strings.TrimSpace(name)
	if chatID == "" || name == "" {
		return domain.Chat{}, fmt.Errorf("%w: chatId and chatName are required", errors.ErrValidation)
	}
	return s.update(chatID, func(c *repositories.Chat) error {
		c.ChatName = name
		return nil
	})
}

func (s *ChatService) AddToGroup(chatID, userID string) (domain.Chat, error) {
	if chatID == "" || userID == "" {
		return domain.Chat{}, fmt.Errorf("%w: chatId and userId are required", errors.ErrValidation)
	}
	if _, err := s.users.GetUser(userID); err != nil {
		return domain.Chat{}, err
	}
	return s.update(chatID, func(c *repositories.Chat) error {
		if !slices.Contains(c.Users, userID) {
			c.Users = append(c.Users, userID)
		}
		return nil
	})
}

func (s *ChatService) RemoveFromGroup(chatID, userID string) (domain.Chat, error) {
	if chatID == "" || userID == "" {
		return domain.Chat{}, fmt.Errorf("%w: chatId and userId are required", errors.ErrValidation)
	}
	return s.update(chatID, func(c *repositories.Chat) error {
		c.Users = lo.Without(c.Users, userID)
		return nil
	})
}

func (s *ChatService) update(chatID string, mutate func(c *repositories.Chat) error) (domain.Chat, error) {
	chat, err := s.chats.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if err := mutate(&chat); err != nil {
		return domain.Chat{}, err
	}
	chat.UpdatedAt = s.now().UTC()
	if err := s.chats.SaveChat(chat); err != nil {
		return domain.Chat{}, fmt.Errorf("save chat: %w", err)
	}
	return s.hydrator.chat(chat)
}
