package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleOwner.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleHelper.AtLeast(RoleAdmin))
	assert.False(t, Role("emperor").AtLeast(RoleSupporter))
	assert.False(t, Role("emperor").Valid())
}

func TestMoveToFront(t *testing.T) {
	chats := []Chat{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	MoveToFront(chats, 2)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(chats))

	MoveToFront(chats, 0)
	MoveToFront(chats, 9)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(chats))
}

func TestSortByRecent(t *testing.T) {
	chats := []Chat{{ID: "a", LastMessageTime: 1}, {ID: "b", LastMessageTime: 3}, {ID: "c", LastMessageTime: 1}}
	sorted := SortByRecent(chats)
	assert.Equal(t, []string{"b", "a", "c"}, ids(sorted))
	assert.Equal(t, []string{"a", "b", "c"}, ids(chats), "input is not reordered")
}

func TestAppendAndPreview(t *testing.T) {
	var c Chat
	c.Append(Message{ID: "1", Text: "hi", Timestamp: 5, Type: MessageTypeText})
	assert.Equal(t, "hi", c.LastMessage)
	assert.EqualValues(t, 5, c.LastMessageTime)

	c.Append(Message{ID: "2", Text: "data:image/png;base64,AA", Timestamp: 6, Type: MessageTypeImage})
	assert.Equal(t, PreviewImage, c.LastMessage)

	c.Append(Message{ID: "3", Text: "Voice (0:03)", Timestamp: 7, Type: MessageTypeAudio})
	assert.Equal(t, PreviewAudio, c.LastMessage)
	assert.Equal(t, 1, c.MessageIndex("2"))
	assert.Equal(t, -1, c.MessageIndex("nope"))
}

func TestSearch(t *testing.T) {
	c := Chat{Messages: []Message{{ID: "1", Text: "Hello World"}, {ID: "2", Text: "bye"}}}
	found := c.Search("  WORLD ")
	assert.Len(t, found, 1)
	assert.Equal(t, "1", found[0].ID)
	assert.Len(t, c.Search(""), 2)
}

func TestNewMessageID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewMessageID("msg", now)
	assert.True(t, strings.HasPrefix(id, "msg-1700000000000-"))
	assert.Len(t, id, len("msg-1700000000000-")+7)
	assert.NotEqual(t, id, NewMessageID("msg", now))
}

func TestSenderFlip(t *testing.T) {
	assert.Equal(t, SenderThem, SenderMe.Flip())
	assert.Equal(t, SenderMe, SenderThem.Flip())
}

func ids(chats []Chat) []string {
	out := make([]string, len(chats))
	for i, c := range chats {
		out[i] = c.ID
	}
	return out
}
