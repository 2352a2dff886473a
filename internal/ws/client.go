package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"nexus/internal/storage"
)

const requestTimeout = 10 * time.Second

var ErrDisconnected = errors.New("origin disconnected")

// RemoteTab is a tab attached to an origin served by another process.
// It satisfies storage.Store.
type RemoteTab struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	next    atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan Frame

	events chan storage.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Dial attaches to the origin at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*RemoteTab, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial origin: %w", err)
	}
	t := &RemoteTab{
		conn:    conn,
		pending: make(map[uint64]chan Frame),
		events:  make(chan storage.Event, tabBuffer),
		done:    make(chan struct{}),
	}
	t.wg.Go(t.readLoop)
	return t, nil
}

func (t *RemoteTab) Events() <-chan storage.Event { return t.events }

func (t *RemoteTab) readLoop() {
	defer func() {
		t.once.Do(func() { close(t.done) })
		close(t.events)
	}()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := f.Unmarshal(data); err != nil {
			continue
		}
		switch f.Op {
		case OpEvent:
			if f.Event == nil {
				continue
			}
			select {
			case t.events <- *f.Event:
			default:
			}
		case OpResult:
			t.mu.Lock()
			ch, ok := t.pending[f.ID]
			delete(t.pending, f.ID)
			t.mu.Unlock()
			if ok {
				ch <- f
			}
		}
	}
}

func (t *RemoteTab) call(req Frame) (Frame, error) {
	req.ID = t.next.Add(1)
	ch := make(chan Frame, 1)

	t.mu.Lock()
	t.pending[req.ID] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}()

	data, err := req.Marshal()
	if err != nil {
		return Frame{}, err
	}
	t.writeMu.Lock()
	err = t.conn.WriteMessage(websocket.BinaryMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return Frame{}, fmt.Errorf("%s %s: %w", req.Op, req.Key, err)
	}

	select {
	case res := <-ch:
		if res.Err != "" {
			return res, fmt.Errorf("%s %s: %s", req.Op, req.Key, res.Err)
		}
		return res, nil
	case <-t.done:
		return Frame{}, ErrDisconnected
	case <-time.After(requestTimeout):
		return Frame{}, fmt.Errorf("%s %s: timed out", req.Op, req.Key)
	}
}

func (t *RemoteTab) Get(key string) (string, bool, error) {
	res, err := t.call(Frame{Op: OpGet, Key: key})
	if err != nil {
		return "", false, err
	}
	return res.Value, res.Found, nil
}

func (t *RemoteTab) Set(key, value string) error {
	_, err := t.call(Frame{Op: OpSet, Key: key, Value: value})
	return err
}

func (t *RemoteTab) Remove(key string) error {
	_, err := t.call(Frame{Op: OpRemove, Key: key})
	return err
}

func (t *RemoteTab) Keys(prefix string) ([]string, error) {
	res, err := t.call(Frame{Op: OpKeys, Key: prefix})
	if err != nil {
		return nil, err
	}
	return res.Keys, nil
}

func (t *RemoteTab) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	err := t.conn.Close()
	t.wg.Wait()
	return err
}
