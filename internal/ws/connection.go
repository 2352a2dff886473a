package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"nexus/internal/storage"
)

type wsConnection interface {
	Close() error
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

type tabStore interface {
	storage.Store
	Events() <-chan storage.Event
}

// Connection serves one remote tab: it executes the tab's storage
// requests and forwards storage events from other tabs.
type Connection struct {
	ws         wsConnection
	tab        tabStore
	log        *slog.Logger
	fromClient chan Frame
	errorCh    chan error
}

func NewConnection(tab tabStore, ws wsConnection, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		ws:         ws,
		tab:        tab,
		log:        log,
		fromClient: make(chan Frame),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.errorCh)
		c.tab.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpFrames(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpFrames(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		var f Frame
		if err := f.Unmarshal(data); err != nil {
			c.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		select {
		case c.fromClient <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	events := c.tab.Events()
	for {
		select {
		case f := <-c.fromClient:
			if err := c.write(c.execute(f)); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := c.write(Frame{Op: OpEvent, Event: &ev}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) write(f Frame) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Connection) execute(req Frame) Frame {
	res := Frame{Op: OpResult, ID: req.ID, Key: req.Key}
	var err error
	switch req.Op {
	case OpGet:
		res.Value, res.Found, err = c.tab.Get(req.Key)
	case OpSet:
		err = c.tab.Set(req.Key, req.Value)
	case OpRemove:
		err = c.tab.Remove(req.Key)
	case OpKeys:
		res.Keys, err = c.tab.Keys(req.Key)
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}
