// Package domain contains core concepts of the chat system.
// This file defines Message records and the rules applied when they are mutated:
// reactions toggle, edits are appended to history, pins toggle and read receipts
// are recorded once per user.
package domain

import (
	"time"

	"github.com/samber/lo"
)

// Reaction groups every user who reacted to a message with the same emoji.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Edit keeps a previous content of a message.
type Edit struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"editedAt"`
}

// ReadReceipt records the first time a user has read a message.
type ReadReceipt struct {
	User   string    `json:"user"`
	ReadAt time.Time `json:"readAt"`
}

// Message is a persisted chat message with its sender and chat populated.
type Message struct {
	ID            string        `json:"_id"`
	Sender        User          `json:"sender"`
	Content       string        `json:"content"`
	Chat          *Chat         `json:"chat,omitempty"`
	IsFile        bool          `json:"isFile"`
	FileType      string        `json:"fileType,omitempty"`
	Reactions     []Reaction    `json:"reactions"`
	Edited        bool          `json:"edited"`
	EditHistory   []Edit        `json:"editHistory"`
	ForwardedFrom string        `json:"forwardedFrom,omitempty"`
	IsPinned      bool          `json:"isPinned"`
	PinnedBy      *string       `json:"pinnedBy"`
	ReadBy        []ReadReceipt `json:"readBy"`
	Lang          string        `json:"lang,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// ChatID returns the id of the chat the message belongs to, or "" when the chat is not populated.
func (m Message) ChatID() string {
	if m.Chat == nil {
		return ""
	}
	return m.Chat.ID
}

func (m Message) IsSentBy(userID string) bool {
	return m.Sender.ID == userID
}

// ToggleReaction adds the user's reaction with emoji, or removes it when it already exists.
// An emoji whose count drops to zero is removed from the list.
func (m *Message) ToggleReaction(userID, emoji string) {
	for i := range m.Reactions {
		r := &m.Reactions[i]
		if r.Emoji != emoji {
			continue
		}
		if lo.Contains(r.Users, userID) {
			r.Users = lo.Without(r.Users, userID)
			r.Count--
			m.Reactions = lo.Filter(m.Reactions, func(item Reaction, _ int) bool {
				return item.Count > 0
			})
			return
		}
		r.Users = append(r.Users, userID)
		r.Count++
		return
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, Count: 1, Users: []string{userID}})
}

// Edit replaces the content and keeps the previous one in history.
func (m *Message) Edit(content string, at time.Time) {
	m.EditHistory = append(m.EditHistory, Edit{Content: m.Content, EditedAt: at})
	m.Content = content
	m.Edited = true
	m.UpdatedAt = at
}

// TogglePin flips the pin state. pinnedBy is cleared on unpin.
func (m *Message) TogglePin(userID string) {
	m.IsPinned = !m.IsPinned
	if m.IsPinned {
		m.PinnedBy = lo.ToPtr(userID)
		return
	}
	m.PinnedBy = nil
}

// MarkRead records a read receipt for the user. It returns false when the user had already read it.
func (m *Message) MarkRead(userID string, at time.Time) bool {
	if lo.ContainsBy(m.ReadBy, func(r ReadReceipt) bool { return r.User == userID }) {
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{User: userID, ReadAt: at})
	return true
}
