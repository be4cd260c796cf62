package domain

import (
	"time"

	"github.com/samber/lo"
)

// Chat is a one-to-one or group conversation with its members populated.
type Chat struct {
	ID            string    `json:"_id"`
	ChatName      string    `json:"chatName"`
	IsGroupChat   bool      `json:"isGroupChat"`
	Users         []User    `json:"users"`
	GroupAdmin    *User     `json:"groupAdmin,omitempty"`
	LatestMessage *Message  `json:"latestMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RoomID returns the real-time channel bound to this chat.
func (c Chat) RoomID() RoomID {
	return RoomID(c.ID)
}

func (c Chat) UserIDs() []string {
	return lo.Map(c.Users, func(u User, _ int) string { return u.ID })
}

func (c Chat) HasUser(userID string) bool {
	return lo.ContainsBy(c.Users, func(u User) bool { return u.ID == userID })
}
