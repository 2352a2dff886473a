// Package view holds the observer side of the store: surfaces that re-pull
// on every change signal and propagate only when the data really changed.
package view

import (
	"sync"
	"sync/atomic"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"nexus/internal/models"
)

type source interface {
	Chats(userID string) []models.Chat
	Subscribe(fn func()) (unsubscribe func())
}

// ChatList mirrors one account's conversations for display.
type ChatList struct {
	src      source
	userID   string
	onChange func([]models.Chat)

	// reads stamps every pull; shown is the stamp of the applied one.
	// A pull older than shown is dropped.
	reads atomic.Uint64

	mu      sync.Mutex
	chats   []models.Chat
	shown   uint64
	applied int
	unsub   func()
}

// NewChatList builds a list for userID. onChange, if set, receives the
// display-ordered list every time a refresh is applied.
func NewChatList(src source, userID string, onChange func([]models.Chat)) *ChatList {
	return &ChatList{
		src:      src,
		userID:   userID,
		onChange: onChange,
		chats:    []models.Chat{},
	}
}

// Mount pulls the current state and starts following change signals.
func (l *ChatList) Mount() {
	l.Refresh()
	unsub := l.src.Subscribe(func() { l.Refresh() })

	l.mu.Lock()
	l.unsub = unsub
	l.mu.Unlock()
}

func (l *ChatList) Unmount() {
	l.mu.Lock()
	unsub := l.unsub
	l.unsub = nil
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Refresh re-pulls the conversation list and applies it only when it
// differs by value from what is shown. It reports whether it applied.
// Concurrent refreshes may finish in any order; a pull that started
// before the one already shown is discarded.
func (l *ChatList) Refresh() bool {
	seq := l.reads.Add(1)
	fresh := l.src.Chats(l.userID)

	l.mu.Lock()
	if seq < l.shown {
		l.mu.Unlock()
		return false
	}
	l.shown = seq
	if cmp.Equal(l.chats, fresh, cmpopts.EquateEmpty()) {
		l.mu.Unlock()
		return false
	}
	l.chats = fresh
	l.applied++
	onChange := l.onChange
	l.mu.Unlock()

	if onChange != nil {
		onChange(models.SortByRecent(fresh))
	}
	return true
}

// Chats returns the conversations ordered newest first.
func (l *ChatList) Chats() []models.Chat {
	l.mu.Lock()
	defer l.mu.Unlock()
	return models.SortByRecent(l.chats)
}

// Active returns the shown conversation with the given id.
func (l *ChatList) Active(id string) (models.Chat, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := models.ChatIndex(l.chats, id); i >= 0 {
		return l.chats[i], true
	}
	return models.Chat{}, false
}

// Applied counts refreshes that changed the list.
func (l *ChatList) Applied() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applied
}
