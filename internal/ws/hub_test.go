package ws

import (
	"strconv"
	"testing"
	"time"

	"nexus/internal/storage"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(storage.NewMemoryStorage(), nil, nil)
	t.Cleanup(func() { h.Close() })
	return h
}

func expectEvent(t *testing.T, ch <-chan storage.Event) storage.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for storage event")
	}
	return storage.Event{}
}

func expectNoEvent(t *testing.T, ch <-chan storage.Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_EventsGoToOtherTabs(t *testing.T) {
	h := newTestHub(t)
	writer := h.Open()
	reader := h.Open()

	if err := writer.Set("k", "v1"); err != nil {
		t.Fatal(err)
	}

	ev := expectEvent(t, reader.Events())
	if ev.Key != "k" || ev.OldValue != "" || ev.NewValue != "v1" || ev.Removed {
		t.Errorf("unexpected event %+v", ev)
	}
	expectNoEvent(t, writer.Events())

	if err := writer.Set("k", "v2"); err != nil {
		t.Fatal(err)
	}
	ev = expectEvent(t, reader.Events())
	if ev.OldValue != "v1" || ev.NewValue != "v2" {
		t.Errorf("unexpected event %+v", ev)
	}

	v, ok, err := reader.Get("k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("reader sees %q %v %v", v, ok, err)
	}
}

func TestHub_UnchangedAndMissing(t *testing.T) {
	h := newTestHub(t)
	writer := h.Open()
	reader := h.Open()

	writer.Set("k", "v")
	expectEvent(t, reader.Events())

	writer.Set("k", "v")
	expectNoEvent(t, reader.Events())

	writer.Remove("missing")
	expectNoEvent(t, reader.Events())

	writer.Remove("k")
	ev := expectEvent(t, reader.Events())
	if !ev.Removed || ev.OldValue != "v" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestHub_SlowTabDropsEvents(t *testing.T) {
	h := newTestHub(t)
	writer := h.Open()
	slow := h.Open()

	for i := 0; i < tabBuffer+10; i++ {
		if err := writer.Set("k", strconv.Itoa(i)); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(slow.Events()); got != tabBuffer {
		t.Errorf("expected %d buffered events, got %d", tabBuffer, got)
	}
}

func TestHub_CloseTab(t *testing.T) {
	h := newTestHub(t)
	a := h.Open()
	b := h.Open()
	if h.Tabs() != 2 {
		t.Fatalf("expected 2 tabs, got %d", h.Tabs())
	}

	b.Close()
	b.Close()
	if h.Tabs() != 1 {
		t.Errorf("expected 1 tab, got %d", h.Tabs())
	}
	if _, ok := <-b.Events(); ok {
		t.Error("closed tab channel still open")
	}

	if err := a.Set("k", "v"); err != nil {
		t.Errorf("write after peer closed: %v", err)
	}
	keys, err := a.Keys("")
	if err != nil || len(keys) != 1 {
		t.Errorf("keys %v %v", keys, err)
	}
}
