package services

import (
	"chat-live/domain"
	"chat-live/errors"
	"chat-live/repositories"
	stderrors "errors"
	"fmt"

	"github.com/samber/lo"
)

func toUser(u repositories.User) domain.User {
	return domain.User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Pic:       u.Pic,
		CreatedAt: u.CreatedAt,
	}
}

func toUsers(users []repositories.User) []domain.User {
	return lo.Map(users, func(u repositories.User, _ int) domain.User { return toUser(u) })
}

// hydrator resolves the references of stored records into populated domain objects.
type hydrator struct {
	users    repositories.IUserRepository
	chats    repositories.IChatRepository
	messages repositories.IMessageRepository
}

// chat populates users, admin and latest message (with its sender).
func (h hydrator) chat(c repositories.Chat) (domain.Chat, error) {
	chat, err := h.chatMembers(c)
	if err != nil {
		return domain.Chat{}, err
	}
	if c.LatestMessage == "" {
		return chat, nil
	}
	latest, err := h.messages.GetMessage(c.LatestMessage)
	if stderrors.Is(err, errors.ErrMessageNotFound) {
		return chat, nil
	}
	if err != nil {
		return domain.Chat{}, fmt.Errorf("load latest message of %s: %w", c.ID, err)
	}
	msg, err := h.messageWith(latest, nil)
	if err != nil {
		return domain.Chat{}, err
	}
	chat.LatestMessage = &msg
	return chat, nil
}

// chatMembers populates users and admin only.
func (h hydrator) chatMembers(c repositories.Chat) (domain.Chat, error) {
	users, err := h.users.GetUsers(c.Users)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("load members of %s: %w", c.ID, err)
	}
	chat := domain.Chat{
		ID:          c.ID,
		ChatName:    c.ChatName,
		IsGroupChat: c.IsGroupChat,
		Users:       toUsers(users),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	if c.GroupAdmin != "" {
		if admin, ok := lo.Find(chat.Users, func(u domain.User) bool { return u.ID == c.GroupAdmin }); ok {
			chat.GroupAdmin = &admin
		} else if admin, err := h.users.GetUser(c.GroupAdmin); err == nil {
			chat.GroupAdmin = lo.ToPtr(toUser(admin))
		}
	}
	return chat, nil
}

// message populates the sender and the chat with its members.
func (h hydrator) message(m repositories.Message) (domain.Message, error) {
	c, err := h.chats.GetChat(m.Chat)
	if err != nil {
		return domain.Message{}, err
	}
	chat, err := h.chatMembers(c)
	if err != nil {
		return domain.Message{}, err
	}
	return h.messageWith(m, &chat)
}

func (h hydrator) messageWith(m repositories.Message, chat *domain.Chat) (domain.Message, error) {
	var sender domain.User
	if chat != nil {
		if u, ok := lo.Find(chat.Users, func(u domain.User) bool { return u.ID == m.Sender }); ok {
			sender = u
		}
	}
	if sender.ID == "" {
		u, err := h.users.GetUser(m.Sender)
		if err != nil {
			return domain.Message{}, fmt.Errorf("load sender of %s: %w", m.ID, err)
		}
		sender = toUser(u)
	}
	return domain.Message{
		ID:            m.ID,
		Sender:        sender,
		Content:       m.Content,
		Chat:          chat,
		IsFile:        m.IsFile,
		FileType:      m.FileType,
		Reactions:     lo.Ternary(m.Reactions == nil, []domain.Reaction{}, m.Reactions),
		Edited:        m.Edited,
		EditHistory:   lo.Ternary(m.EditHistory == nil, []domain.Edit{}, m.EditHistory),
		ForwardedFrom: m.ForwardedFrom,
		IsPinned:      m.IsPinned,
		PinnedBy:      m.PinnedBy,
		ReadBy:        lo.Ternary(m.ReadBy == nil, []domain.ReadReceipt{}, m.ReadBy),
		Lang:          m.Lang,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

// detached rebuilds a message from its record with sender and chat referenced by id only.
func detached(m repositories.Message) domain.Message {
	return domain.Message{
		ID:            m.ID,
		Sender:        domain.User{ID: m.Sender},
		Content:       m.Content,
		Chat:          &domain.Chat{ID: m.Chat},
		IsFile:        m.IsFile,
		FileType:      m.FileType,
		Reactions:     m.Reactions,
		Edited:        m.Edited,
		EditHistory:   m.EditHistory,
		ForwardedFrom: m.ForwardedFrom,
		IsPinned:      m.IsPinned,
		PinnedBy:      m.PinnedBy,
		ReadBy:        m.ReadBy,
		Lang:          m.Lang,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// record converts a mutated domain message back into its stored form.
func record(m domain.Message) repositories.Message {
	return repositories.Message{
		ID:            m.ID,
		Sender:        m.Sender.ID,
		Content:       m.Content,
		Chat:          m.ChatID(),
		IsFile:        m.IsFile,
		FileType:      m.FileType,
		Reactions:     m.Reactions,
		Edited:        m.Edited,
		EditHistory:   m.EditHistory,
		ForwardedFrom: m.ForwardedFrom,
		IsPinned:      m.IsPinned,
		PinnedBy:      m.PinnedBy,
		ReadBy:        m.ReadBy,
		Lang:          m.Lang,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
