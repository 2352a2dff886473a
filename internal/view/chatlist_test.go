package view

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/models"
	"nexus/internal/nexusdb"
	"nexus/internal/storage"
)

func newStore(t *testing.T) *nexusdb.Store {
	t.Helper()
	kv := storage.NewMemoryStorage()
	t.Cleanup(func() { kv.Close() })
	return nexusdb.New(kv)
}

func TestChatListAppliesOnlyRealChanges(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveChats("A", []models.Chat{
		{ID: "B", LastMessageTime: 1},
		{ID: "C", LastMessageTime: 5},
	}, false))

	var renders [][]models.Chat
	l := NewChatList(s, "A", func(c []models.Chat) { renders = append(renders, c) })
	l.Mount()
	defer l.Unmount()

	require.Len(t, renders, 1)
	assert.Equal(t, "C", renders[0][0].ID, "display order is newest first")

	// Unrelated writes raise signals but change nothing here.
	require.NoError(t, s.SaveDirectory([]models.Account{{ID: "Z"}}))
	require.NoError(t, s.SaveChats("OTHER", []models.Chat{{ID: "A"}}, true))
	s.Notify()
	assert.Len(t, renders, 1)
	assert.Equal(t, 1, l.Applied())

	require.NoError(t, s.UpdateChats("A", true, func(chats []models.Chat) ([]models.Chat, error) {
		chats[0].UnreadCount = 3
		return chats, nil
	}))
	assert.Len(t, renders, 2)

	c, ok := l.Active("B")
	require.True(t, ok)
	assert.Equal(t, 3, c.UnreadCount)
	_, ok = l.Active("nope")
	assert.False(t, ok)
}

func TestChatListEmptyEqualsNil(t *testing.T) {
	s := newStore(t)
	l := NewChatList(s, "A", nil)
	assert.False(t, l.Refresh())

	require.NoError(t, s.SaveChats("A", []models.Chat{}, true))
	assert.False(t, l.Refresh())
	assert.Equal(t, 0, l.Applied())
}

func TestChatListUnmount(t *testing.T) {
	s := newStore(t)
	l := NewChatList(s, "A", nil)
	l.Mount()
	l.Unmount()
	l.Unmount()

	require.NoError(t, s.SaveChats("A", []models.Chat{{ID: "B"}}, true))
	assert.Empty(t, l.Chats())
}

// stallingSource serves a versioned list and holds its second read until
// released, so the read finishes after a later one.
type stallingSource struct {
	version atomic.Int32
	calls   atomic.Int32
	stalled chan struct{}
	release chan struct{}
}

func (s *stallingSource) Chats(userID string) []models.Chat {
	v := int(s.version.Load())
	if s.calls.Add(1) == 2 {
		close(s.stalled)
		<-s.release
	}
	return []models.Chat{{ID: "B", UnreadCount: v}}
}

func (s *stallingSource) Subscribe(fn func()) func() { return func() {} }

func TestChatListDropsOutOfOrderRefresh(t *testing.T) {
	src := &stallingSource{
		stalled: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := NewChatList(src, "A", nil)

	src.version.Store(1)
	require.True(t, l.Refresh())

	src.version.Store(2)
	slow := make(chan bool, 1)
	go func() { slow <- l.Refresh() }()
	<-src.stalled

	src.version.Store(3)
	require.True(t, l.Refresh())

	close(src.release)
	assert.False(t, <-slow, "an older read must not be applied")

	c, ok := l.Active("B")
	require.True(t, ok)
	assert.Equal(t, 3, c.UnreadCount)
	assert.Equal(t, 2, l.Applied())
}
