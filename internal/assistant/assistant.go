// Package assistant runs the round trip to the completion service for
// AI-backed conversations and folds the reply back into storage.
package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/c-pro/geche"

	"nexus/internal/metrics"
	"nexus/internal/models"
	"nexus/internal/nexusdb"
)

const (
	ArchitectID = "nexus-architect"
	HelperID    = "nexus-assistant"

	ArchitectPersona = "You are The Architect. Omniscient, cryptic, helpful. Use short, impactful sentences."
	DefaultPersona   = "You are a helpful assistant."

	// Fallback is delivered as the reply whenever the service fails.
	Fallback = "Sorry, I'm having trouble connecting to my brain right now. Please try again!"

	ImageToken    = "[Image]"
	DefaultWindow = 10

	composingTTL = 2 * time.Minute
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Completer is the external text completion service. Implementations
// never fail: errors are mapped to Fallback.
type Completer interface {
	Complete(ctx context.Context, prompt string, history []Turn, persona string) string
}

// Persona picks the system instruction for the addressed AI identity.
func Persona(chatID string) string {
	if chatID == ArchitectID {
		return ArchitectPersona
	}
	return DefaultPersona
}

// Prompt is the text sent for m; binary payloads degrade to ImageToken.
func Prompt(m models.Message) string {
	if m.Type == models.MessageTypeImage {
		return ImageToken
	}
	return m.Text
}

// Transcript maps the last window non-system messages to role tagged turns.
// System messages such as the channel greeting are dropped before the
// window is taken, so they never use up a slot.
func Transcript(messages []models.Message, window int) []Turn {
	turns := make([]Turn, 0, window)
	for _, m := range messages {
		if m.Type == models.MessageTypeSystem {
			continue
		}
		role := RoleModel
		if m.Sender == models.SenderMe {
			role = RoleUser
		}
		turns = append(turns, Turn{Role: role, Text: Prompt(m)})
	}
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	return turns
}

type chatStore interface {
	UpdateChats(userID string, notify bool, fn func([]models.Chat) ([]models.Chat, error)) error
	Notify()
}

type Bridge struct {
	store     chatStore
	completer Completer
	composing geche.Geche[string, struct{}]
	window    int
	log       *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Bridge)

func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

func WithWindow(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.window = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// NewBridge creates a bridge. ctx bounds the composing indicator's
// background expiry.
func NewBridge(ctx context.Context, store chatStore, completer Completer, opts ...Option) *Bridge {
	b := &Bridge{
		store:     store,
		completer: completer,
		composing: geche.NewMapTTLCache[string, struct{}](ctx, composingTTL, time.Minute),
		window:    DefaultWindow,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Composing reports whether a reply for chatID is outstanding.
func (b *Bridge) Composing(chatID string) bool {
	_, err := b.composing.Get(chatID)
	return err == nil
}

func (b *Bridge) setComposing(chatID string, on bool) {
	if on {
		b.composing.Set(chatID, struct{}{})
	} else {
		_ = b.composing.Del(chatID)
	}
	b.store.Notify()
}

// Respond asks the completion service to answer prompt in chat, owned by
// ownerID, and appends the reply to the freshest stored copy of chat.
// chat is the snapshot taken before the prompt was sent.
func (b *Bridge) Respond(ctx context.Context, ownerID string, chat models.Chat, prompt string) error {
	b.setComposing(chat.ID, true)
	defer b.setComposing(chat.ID, false)

	start := b.now()
	text := b.completer.Complete(ctx, prompt, Transcript(chat.Messages, b.window), Persona(chat.ID))
	result := "ok"
	if text == "" || text == Fallback {
		text = Fallback
		result = "fallback"
	}
	b.metrics.AssistantReply(result, b.now().Sub(start))

	now := b.now()
	reply := models.Message{
		ID:        models.NewMessageID("ai", now),
		Text:      text,
		Timestamp: now.UnixMilli(),
		Sender:    models.SenderThem,
		Status:    models.StatusRead,
		Type:      models.MessageTypeText,
	}
	return b.reconcile(ownerID, chat.ID, reply)
}

func (b *Bridge) reconcile(ownerID, chatID string, reply models.Message) error {
	return b.store.UpdateChats(ownerID, true, func(chats []models.Chat) ([]models.Chat, error) {
		i := models.ChatIndex(chats, chatID)
		if i < 0 {
			b.log.Warn("assistant reply dropped, conversation is gone", "user_id", ownerID, "chat_id", chatID)
			return nil, nexusdb.ErrNoChange
		}
		chats[i].Append(reply)
		return models.MoveToFront(chats, i), nil
	})
}
