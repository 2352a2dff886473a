package chat

import (
	"context"
	"fmt"

	"nexus/internal/models"
)

// Action is a user intent accepted by Engine.Apply. The set is closed.
type Action interface {
	action()
}

type Start struct {
	TargetID string
}

type Send struct {
	ChatID   string
	Text     string
	Type     models.MessageType
	ReplyTo  *models.Message
	Metadata map[string]string
}

type React struct {
	ChatID    string
	MessageID string
	Emoji     string
}

type Delete struct {
	ChatID    string
	MessageID string
}

type MarkRead struct {
	ChatID string
}

func (Start) action()    {}
func (Send) action()     {}
func (React) action()    {}
func (Delete) action()   {}
func (MarkRead) action() {}

// Apply dispatches a to the matching operation.
func (e *Engine) Apply(ctx context.Context, a Action) error {
	switch a := a.(type) {
	case Start:
		_, _, err := e.StartByID(ctx, a.TargetID)
		return err
	case Send:
		_, err := e.Send(ctx, a)
		return err
	case React:
		return e.React(ctx, a.ChatID, a.MessageID, a.Emoji)
	case Delete:
		return e.Delete(ctx, a.ChatID, a.MessageID)
	case MarkRead:
		return e.MarkRead(ctx, a.ChatID)
	default:
		return fmt.Errorf("unknown action %T", a)
	}
}
