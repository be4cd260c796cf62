package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessage_ToggleReaction_Twice_Restores_State(t *testing.T) {
	req := require.New(t)
	msg := Message{Reactions: []Reaction{{Emoji: "👍", Count: 1, Users: []string{"B"}}}}

	// When A reacts then reacts again with the same emoji
	msg.ToggleReaction("A", "👍")
	req.Equal(2, msg.Reactions[0].Count)
	msg.ToggleReaction("A", "👍")

	// Then the reaction is back to its previous count and users
	req.Len(msg.Reactions, 1)
	req.Equal(1, msg.Reactions[0].Count)
	req.Equal([]string{"B"}, msg.Reactions[0].Users)
}

func TestMessage_ToggleReaction_Removes_Empty_Entries(t *testing.T) {
	req := require.New(t)
	msg := Message{}

	// Given two different emojis from the same user
	msg.ToggleReaction("A", "👍")
	msg.ToggleReaction("A", "🔥")
	req.Len(msg.Reactions, 2)

	// When one of them is toggled off
	msg.ToggleReaction("A", "👍")

	// Then only the other one is left
	req.Len(msg.Reactions, 1)
	req.Equal("🔥", msg.Reactions[0].Emoji)
}

func TestMessage_Edit_Keeps_History(t *testing.T) {
	req := require.New(t)
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	msg := Message{Content: "one"}

	msg.Edit("two", t0)
	msg.Edit("three", t0.Add(time.Minute))

	req.True(msg.Edited)
	req.Equal("three", msg.Content)
	req.Equal([]Edit{{Content: "one", EditedAt: t0}, {Content: "two", EditedAt: t0.Add(time.Minute)}}, msg.EditHistory)
}

func TestMessage_TogglePin(t *testing.T) {
	req := require.New(t)
	msg := Message{}

	msg.TogglePin("A")
	req.True(msg.IsPinned)
	req.Equal("A", *msg.PinnedBy)

	msg.TogglePin("B")
	req.False(msg.IsPinned)
	req.Nil(msg.PinnedBy)
}

func TestMessage_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	msg := Message{}
	now := time.Now()

	req.True(msg.MarkRead("B", now))
	req.False(msg.MarkRead("B", now.Add(time.Second)))

	req.Len(msg.ReadBy, 1)
	req.Equal(now, msg.ReadBy[0].ReadAt)
}
