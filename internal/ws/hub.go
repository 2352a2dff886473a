package ws

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"nexus/internal/metrics"
	"nexus/internal/storage"
)

const tabBuffer = 64

// Hub is one storage origin shared by any number of tabs. A write made
// through one tab is announced to every other tab as a storage.Event;
// the writing tab never hears about its own writes.
type Hub struct {
	store   storage.Store
	log     *slog.Logger
	metrics *metrics.Metrics

	// Map of tabID -> event channel
	tabs map[string]chan storage.Event

	mu sync.RWMutex
}

func NewHub(store storage.Store, log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		store:   store,
		log:     log,
		metrics: m,
		tabs:    make(map[string]chan storage.Event),
	}
}

// Open attaches a new tab to the origin.
func (h *Hub) Open() *Tab {
	id := uuid.NewString()
	return &Tab{
		id:     id,
		hub:    h,
		events: h.Join(id),
	}
}

func (h *Hub) Join(tabID string) chan storage.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan storage.Event, tabBuffer)
	h.tabs[tabID] = ch
	h.metrics.TabOpened()
	h.log.Debug("tab attached", "tab_id", tabID)
	return ch
}

func (h *Hub) Leave(tabID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.tabs[tabID]; ok {
		close(ch)
		delete(h.tabs, tabID)
		h.metrics.TabClosed()
		h.log.Debug("tab detached", "tab_id", tabID)
	}
}

// Tabs returns the number of attached tabs.
func (h *Hub) Tabs() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tabs)
}

// Close detaches every tab and closes the underlying store.
func (h *Hub) Close() error {
	h.mu.Lock()
	for id, ch := range h.tabs {
		close(ch)
		delete(h.tabs, id)
		h.metrics.TabClosed()
	}
	h.mu.Unlock()
	return h.store.Close()
}

func (h *Hub) get(key string) (string, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.Get(key)
}

func (h *Hub) keys(prefix string) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store.Keys(prefix)
}

func (h *Hub) set(from, key, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, existed, err := h.store.Get(key)
	if err != nil {
		return err
	}
	if err := h.store.Set(key, value); err != nil {
		return err
	}
	if existed && old == value {
		return nil
	}
	h.publish(from, storage.Event{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (h *Hub) remove(from, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, existed, err := h.store.Get(key)
	if err != nil {
		return err
	}
	if err := h.store.Remove(key); err != nil {
		return err
	}
	if !existed {
		return nil
	}
	h.publish(from, storage.Event{Key: key, OldValue: old, Removed: true})
	return nil
}

// publish must be called with h.mu held.
func (h *Hub) publish(from string, ev storage.Event) {
	for id, ch := range h.tabs {
		if id == from {
			continue
		}
		select {
		case ch <- ev:
			h.metrics.TabEvent("sent")
		default:
			h.metrics.TabEvent("dropped")
			h.log.Warn("tab event dropped", "tab_id", id, "key", ev.Key)
		}
	}
}

// Tab is one window's view of the origin. It satisfies storage.Store.
type Tab struct {
	id     string
	hub    *Hub
	events chan storage.Event
	once   sync.Once
}

func (t *Tab) ID() string { return t.id }

// Events delivers writes made by other tabs. The channel is closed when
// the tab is closed.
func (t *Tab) Events() <-chan storage.Event { return t.events }

func (t *Tab) Get(key string) (string, bool, error) { return t.hub.get(key) }

func (t *Tab) Set(key, value string) error { return t.hub.set(t.id, key, value) }

func (t *Tab) Remove(key string) error { return t.hub.remove(t.id, key) }

func (t *Tab) Keys(prefix string) ([]string, error) { return t.hub.keys(prefix) }

// Close detaches the tab. The origin's store stays open.
func (t *Tab) Close() error {
	t.once.Do(func() { t.hub.Leave(t.id) })
	return nil
}
