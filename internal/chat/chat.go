// Package chat is the conversation sync engine. It applies user intents to
// the signed in account's conversations and simulates delivery by writing
// mirrored copies into the counterpart's partition.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nexus/internal/assistant"
	"nexus/internal/content"
	"nexus/internal/metrics"
	"nexus/internal/models"
	"nexus/internal/nexusdb"
)

const SystemGreeting = "SECURE CHANNEL ESTABLISHED."

var (
	ErrNoConversation = errors.New("conversation does not exist")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNotImage       = errors.New("image message does not carry an image")
)

// Responder produces AI replies for AI-backed conversations.
type Responder interface {
	Respond(ctx context.Context, ownerID string, chat models.Chat, prompt string) error
}

type Config struct {
	Store     *nexusdb.Store
	Assistant Responder
	Log       *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type Engine struct {
	store     *nexusdb.Store
	assistant Responder
	log       *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// wg tracks outstanding assistant replies.
	wg sync.WaitGroup
}

func New(config Config) *Engine {
	e := &Engine{
		store:     config.Store,
		assistant: config.Assistant,
		log:       config.Log,
		metrics:   config.Metrics,
		now:       config.Now,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Wait blocks until every outstanding assistant reply has been reconciled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func systemMessage(prefix string, now time.Time) models.Message {
	return models.Message{
		ID:        models.NewMessageID(prefix, now),
		Text:      SystemGreeting,
		Timestamp: now.UnixMilli(),
		Sender:    models.SenderThem,
		Status:    models.StatusRead,
		Type:      models.MessageTypeSystem,
	}
}

// Conversations returns the current user's conversations in stored order.
func (e *Engine) Conversations() ([]models.Chat, error) {
	me, err := e.store.RequireCurrentUser()
	if err != nil {
		return nil, err
	}
	return e.store.Chats(me.ID), nil
}

func (e *Engine) Conversation(chatID string) (models.Chat, error) {
	chats, err := e.Conversations()
	if err != nil {
		return models.Chat{}, err
	}
	i := models.ChatIndex(chats, chatID)
	if i < 0 {
		return models.Chat{}, fmt.Errorf("%w: %s", ErrNoConversation, chatID)
	}
	return chats[i], nil
}

// Start opens a conversation with target. It is idempotent: an existing
// conversation is returned untouched and created is false.
func (e *Engine) Start(ctx context.Context, target models.Account) (chat models.Chat, created bool, err error) {
	me, err := e.store.RequireCurrentUser()
	if err != nil {
		return models.Chat{}, false, err
	}

	now := e.now()
	err = e.store.UpdateChats(me.ID, true, func(chats []models.Chat) ([]models.Chat, error) {
		if i := models.ChatIndex(chats, target.ID); i >= 0 {
			chat = chats[i]
			return nil, nexusdb.ErrNoChange
		}
		chat = models.Chat{
			ID:              target.ID,
			Name:            target.Name,
			Avatar:          target.Avatar,
			IsOnline:        true,
			IsAI:            target.IsAI,
			IsSelf:          target.ID == me.ID,
			Messages:        []models.Message{systemMessage("sys", now)},
			LastMessageTime: now.UnixMilli(),
		}
		created = true
		return append([]models.Chat{chat}, chats...), nil
	})
	if err != nil {
		return models.Chat{}, false, err
	}
	if created {
		e.log.Debug("conversation started", "user_id", me.ID, "chat_id", target.ID)
	}
	return chat, created, nil
}

// StartByID resolves id in the directory and starts a conversation with it.
func (e *Engine) StartByID(ctx context.Context, id string) (models.Chat, bool, error) {
	target, ok := e.store.Lookup(id)
	if !ok {
		return models.Chat{}, false, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	return e.Start(ctx, target)
}

func validate(s Send) error {
	switch s.Type {
	case models.MessageTypeImage:
		if _, err := content.DetectImage(s.Text); err != nil {
			return fmt.Errorf("%w: %v", ErrNotImage, err)
		}
	default:
		if strings.TrimSpace(s.Text) == "" {
			return ErrEmptyMessage
		}
	}
	return nil
}

// Send appends a message to the current user's conversation chatID, then
// either mirrors it into the counterpart's partition or, for AI-backed
// conversations, starts the assistant round trip in the background.
// Mirroring failures are logged and never undo the local echo.
func (e *Engine) Send(ctx context.Context, s Send) (models.Message, error) {
	if s.Type == "" {
		s.Type = models.MessageTypeText
	}
	if err := validate(s); err != nil {
		return models.Message{}, err
	}
	me, err := e.store.RequireCurrentUser()
	if err != nil {
		return models.Message{}, err
	}

	now := e.now()
	msg := models.Message{
		ID:        models.NewMessageID("msg", now),
		Text:      s.Text,
		Timestamp: now.UnixMilli(),
		Sender:    models.SenderMe,
		Status:    models.StatusSent,
		Type:      s.Type,
		Metadata:  s.Metadata,
	}
	if s.ReplyTo != nil {
		msg.ReplyToID = s.ReplyTo.ID
		msg.ReplyToText = s.ReplyTo.Text
	}

	var before models.Chat
	err = e.store.UpdateChats(me.ID, true, func(chats []models.Chat) ([]models.Chat, error) {
		i := models.ChatIndex(chats, s.ChatID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoConversation, s.ChatID)
		}
		before = chats[i]
		before.Messages = append([]models.Message(nil), chats[i].Messages...)

		chats[i].Append(msg)
		chats[i].UnreadCount = 0
		return models.MoveToFront(chats, i), nil
	})
	if err != nil {
		return models.Message{}, err
	}

	switch {
	case before.IsAI:
		e.respond(ctx, me.ID, before, msg)
	case before.ID != me.ID && !before.IsSelf:
		e.deliver(me, before.ID, msg)
	}
	return msg, nil
}

func (e *Engine) respond(ctx context.Context, ownerID string, chat models.Chat, msg models.Message) {
	if e.assistant == nil {
		e.log.Warn("no assistant configured, message not answered", "chat_id", chat.ID)
		return
	}
	ctx = context.WithoutCancel(ctx)
	e.wg.Go(func() {
		if err := e.assistant.Respond(ctx, ownerID, chat, assistant.Prompt(msg)); err != nil {
			e.log.Error("assistant reply not stored", "user_id", ownerID, "chat_id", chat.ID, "error", err)
		}
	})
}

// deliver writes the incoming copy of msg into recipientID's partition
// without raising a local change signal.
func (e *Engine) deliver(sender models.Account, recipientID string, msg models.Message) {
	if _, ok := e.store.Lookup(recipientID); !ok {
		e.metrics.Delivery("skipped")
		e.log.Debug("recipient not in directory, delivery skipped", "chat_id", recipientID)
		return
	}

	incoming := msg
	incoming.Sender = msg.Sender.Flip()
	incoming.Status = models.StatusDelivered

	now := e.now()
	err := e.store.UpdateChats(recipientID, false, func(chats []models.Chat) ([]models.Chat, error) {
		if i := models.ChatIndex(chats, sender.ID); i >= 0 {
			chats[i].Append(incoming)
			chats[i].UnreadCount++
			return models.MoveToFront(chats, i), nil
		}
		c := models.Chat{
			ID:       sender.ID,
			Name:     sender.Name,
			Avatar:   sender.Avatar,
			IsOnline: true,
			Messages: []models.Message{systemMessage("sys-init", now)},
		}
		c.Append(incoming)
		c.UnreadCount = 1
		return append([]models.Chat{c}, chats...), nil
	})
	if err != nil {
		e.metrics.Delivery("failed")
		e.log.Error("delivery failed", "user_id", sender.ID, "chat_id", recipientID, "error", err)
		return
	}
	e.metrics.Delivery("ok")
}

// mirrored reports whether chat has a counterpart partition that local
// side effects should be copied into.
func (e *Engine) mirrored(me models.Account, chat models.Chat) bool {
	if chat.IsAI || chat.IsSelf || chat.ID == me.ID {
		return false
	}
	_, ok := e.store.Lookup(chat.ID)
	return ok
}

// Delete removes a message from the current user's copy only. The
// counterpart's copy is left as is.
func (e *Engine) Delete(ctx context.Context, chatID, messageID string) error {
	me, err := e.store.RequireCurrentUser()
	if err != nil {
		return err
	}
	return e.store.UpdateChats(me.ID, true, func(chats []models.Chat) ([]models.Chat, error) {
		i := models.ChatIndex(chats, chatID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoConversation, chatID)
		}
		c := &chats[i]
		j := c.MessageIndex(messageID)
		if j < 0 {
			return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
		}
		c.Messages = append(c.Messages[:j], c.Messages[j+1:]...)
		if n := len(c.Messages); n > 0 {
			last := c.Messages[n-1]
			c.LastMessage = models.PreviewText(last)
			c.LastMessageTime = last.Timestamp
		} else {
			c.LastMessage = ""
		}
		return chats, nil
	})
}

// React sets, or with an empty emoji clears, the reaction on a message in
// both copies of the conversation.
func (e *Engine) React(ctx context.Context, chatID, messageID, emoji string) error {
	me, err := e.store.RequireCurrentUser()
	if err != nil {
		return err
	}
	var chat models.Chat
	err = e.store.UpdateChats(me.ID, true, func(chats []models.Chat) ([]models.Chat, error) {
		i := models.ChatIndex(chats, chatID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoConversation, chatID)
		}
		j := chats[i].MessageIndex(messageID)
		if j < 0 {
			return nil, fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
		}
		chats[i].Messages[j].Reaction = emoji
		chat = chats[i]
		return chats, nil
	})
	if err != nil {
		return err
	}
	if !e.mirrored(me, chat) {
		return nil
	}

	err = e.store.UpdateChats(chatID, false, func(chats []models.Chat) ([]models.Chat, error) {
		i := models.ChatIndex(chats, me.ID)
		if i < 0 {
			return nil, nexusdb.ErrNoChange
		}
		j := chats[i].MessageIndex(messageID)
		if j < 0 {
			return nil, nexusdb.ErrNoChange
		}
		chats[i].Messages[j].Reaction = emoji
		return chats, nil
	})
	if err != nil {
		e.log.Error("mirroring reaction failed", "chat_id", chatID, "error", err)
	}
	return nil
}

// MarkRead clears the unread counter of chatID and marks incoming
// messages read. With read receipts on, the counterpart's copies of the
// current user's messages are marked read as well.
func (e *Engine) MarkRead(ctx context.Context, chatID string) error {
	me, err := e.store.RequireCurrentUser()
	if err != nil {
		return err
	}
	var chat models.Chat
	err = e.store.UpdateChats(me.ID, true, func(chats []models.Chat) ([]models.Chat, error) {
		i := models.ChatIndex(chats, chatID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoConversation, chatID)
		}
		chat = chats[i]
		changed := markRead(&chats[i], models.SenderThem)
		if chats[i].UnreadCount != 0 {
			chats[i].UnreadCount = 0
			changed = true
		}
		if !changed {
			return nil, nexusdb.ErrNoChange
		}
		return chats, nil
	})
	if err != nil {
		return err
	}
	if !me.Settings.ReadReceipts || !e.mirrored(me, chat) {
		return nil
	}

	err = e.store.UpdateChats(chatID, false, func(chats []models.Chat) ([]models.Chat, error) {
		i := models.ChatIndex(chats, me.ID)
		if i < 0 || !markRead(&chats[i], models.SenderMe) {
			return nil, nexusdb.ErrNoChange
		}
		return chats, nil
	})
	if err != nil {
		e.log.Error("read receipt failed", "chat_id", chatID, "error", err)
	}
	return nil
}

func markRead(c *models.Chat, from models.Sender) bool {
	changed := false
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.Sender == from && m.Type != models.MessageTypeSystem && m.Status != models.StatusRead {
			m.Status = models.StatusRead
			changed = true
		}
	}
	return changed
}

// Search returns messages of chatID whose text contains query.
func (e *Engine) Search(chatID, query string) ([]models.Message, error) {
	c, err := e.Conversation(chatID)
	if err != nil {
		return nil, err
	}
	return c.Search(query), nil
}
