package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nexus/internal/models"
	"nexus/internal/nexusdb"
	"nexus/internal/storage"
)

const (
	alice = "ALICE00001"
	bob   = "BOB0000001"
	bot   = "nexus-assistant"
)

// tinyPNG is a 1x1 transparent png.
const tinyPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type mockResponder struct {
	mock.Mock
}

func (m *mockResponder) Respond(ctx context.Context, ownerID string, chat models.Chat, prompt string) error {
	args := m.Called(ctx, ownerID, chat, prompt)
	return args.Error(0)
}

type fixture struct {
	store   *nexusdb.Store
	engine  *Engine
	ai      *mockResponder
	signals *atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := storage.NewMemoryStorage()
	t.Cleanup(func() { kv.Close() })
	store := nexusdb.New(kv)

	require.NoError(t, store.SaveDirectory([]models.Account{
		{ID: alice, Name: "Alice", Avatar: "a.png", Role: models.RoleUser, Settings: models.DefaultSettings()},
		{ID: bob, Name: "Bob", Avatar: "b.png", Role: models.RoleUser, Settings: models.DefaultSettings()},
		{ID: bot, Name: "Nexus AI", IsAI: true, Role: models.RoleUser, Settings: models.DefaultSettings()},
	}))
	login(t, store, alice)

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ai := &mockResponder{}
	engine := New(Config{
		Store:     store,
		Assistant: ai,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})

	signals := &atomic.Int32{}
	unsubscribe := store.Subscribe(func() { signals.Add(1) })
	t.Cleanup(unsubscribe)

	return &fixture{store: store, engine: engine, ai: ai, signals: signals}
}

func login(t *testing.T, store *nexusdb.Store, id string) {
	t.Helper()
	a, ok := store.Lookup(id)
	require.True(t, ok)
	require.NoError(t, store.SaveCurrentUser(a))
}

func (f *fixture) chat(t *testing.T, owner, id string) models.Chat {
	t.Helper()
	chats := f.store.Chats(owner)
	i := models.ChatIndex(chats, id)
	require.GreaterOrEqual(t, i, 0, "chat %s not found in %s", id, owner)
	return chats[i]
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	c, created, err := f.engine.StartByID(ctx, bob)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, bob, c.ID)
	assert.Equal(t, "Bob", c.Name)
	assert.True(t, c.IsOnline)
	assert.False(t, c.IsAI)
	assert.Empty(t, c.LastMessage)
	assert.NotZero(t, c.LastMessageTime)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, models.MessageTypeSystem, c.Messages[0].Type)
	assert.Equal(t, SystemGreeting, c.Messages[0].Text)

	t.Run("Idempotent", func(t *testing.T) {
		before := f.signals.Load()
		again, created, err := f.engine.StartByID(ctx, bob)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, c, again)
		assert.Len(t, f.store.Chats(alice), 1)
		assert.Equal(t, before, f.signals.Load())
	})

	t.Run("New conversations go first", func(t *testing.T) {
		ai, _, err := f.engine.StartByID(ctx, bot)
		require.NoError(t, err)
		assert.True(t, ai.IsAI)
		chats := f.store.Chats(alice)
		require.Len(t, chats, 2)
		assert.Equal(t, bot, chats[0].ID)
	})

	t.Run("Self", func(t *testing.T) {
		self, _, err := f.engine.StartByID(ctx, alice)
		require.NoError(t, err)
		assert.True(t, self.IsSelf)
	})

	t.Run("Unknown account", func(t *testing.T) {
		_, _, err := f.engine.StartByID(ctx, "NOBODY")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Partner untouched", func(t *testing.T) {
		assert.Empty(t, f.store.Chats(bob))
	})
}

func TestSendMirrorsIntoRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, _, err := f.engine.StartByID(ctx, bot)
	require.NoError(t, err)
	_, _, err = f.engine.StartByID(ctx, bob)
	require.NoError(t, err)
	_, _, err = f.engine.StartByID(ctx, bot)
	require.NoError(t, err)

	// Push bob's conversation back so the send has to move it.
	require.NoError(t, f.store.UpdateChats(alice, false, func(chats []models.Chat) ([]models.Chat, error) {
		return models.MoveToFront(chats, models.ChatIndex(chats, bot)), nil
	}))

	before := f.signals.Load()
	m, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "hello bob"})
	require.NoError(t, err)
	assert.Equal(t, before+1, f.signals.Load(), "exactly one local signal")

	assert.Equal(t, models.SenderMe, m.Sender)
	assert.Equal(t, models.StatusSent, m.Status)
	assert.Equal(t, models.MessageTypeText, m.Type)
	assert.Regexp(t, `^msg-\d+-[0-9a-f-]{7}$`, m.ID)

	chats := f.store.Chats(alice)
	require.Equal(t, bob, chats[0].ID)
	local := chats[0]
	assert.Equal(t, m, local.Messages[len(local.Messages)-1])
	assert.Equal(t, "hello bob", local.LastMessage)
	assert.Equal(t, m.Timestamp, local.LastMessageTime)
	assert.Zero(t, local.UnreadCount)

	mirrored := f.chat(t, bob, alice)
	assert.Equal(t, "Alice", mirrored.Name)
	assert.Equal(t, "a.png", mirrored.Avatar)
	assert.Equal(t, 1, mirrored.UnreadCount)
	require.Len(t, mirrored.Messages, 2)
	assert.Equal(t, models.MessageTypeSystem, mirrored.Messages[0].Type)
	assert.Equal(t, models.StatusRead, mirrored.Messages[0].Status)

	in := mirrored.Messages[1]
	assert.Equal(t, m.ID, in.ID)
	assert.Equal(t, m.Text, in.Text)
	assert.Equal(t, m.Timestamp, in.Timestamp)
	assert.Equal(t, models.SenderThem, in.Sender)
	assert.Equal(t, models.StatusDelivered, in.Status)
	assert.Equal(t, "hello bob", mirrored.LastMessage)

	t.Run("Second message increments unread", func(t *testing.T) {
		_, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "again"})
		require.NoError(t, err)
		mirrored := f.chat(t, bob, alice)
		assert.Equal(t, 2, mirrored.UnreadCount)
		assert.Len(t, mirrored.Messages, 3)
	})

	t.Run("Existing conversation moves to front", func(t *testing.T) {
		require.NoError(t, f.store.SaveChats(bob, []models.Chat{
			{ID: "SOMEONE"},
			f.chat(t, bob, alice),
		}, false))
		_, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "third"})
		require.NoError(t, err)
		assert.Equal(t, alice, f.store.Chats(bob)[0].ID)
	})

	t.Run("Reply and metadata are carried", func(t *testing.T) {
		r, err := f.engine.Send(ctx, Send{
			ChatID:   bob,
			Text:     "quoting",
			ReplyTo:  &m,
			Metadata: map[string]string{"duration": "3"},
		})
		require.NoError(t, err)
		in := f.chat(t, bob, alice)
		got := in.Messages[in.MessageIndex(r.ID)]
		assert.Equal(t, m.ID, got.ReplyToID)
		assert.Equal(t, m.Text, got.ReplyToText)
		assert.Equal(t, "3", got.Metadata["duration"])
	})

	f.ai.AssertNotCalled(t, "Respond", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, _, err := f.engine.StartByID(ctx, bob)
	require.NoError(t, err)

	tests := []struct {
		name string
		send Send
		err  error
	}{
		{"Empty", Send{ChatID: bob, Text: ""}, ErrEmptyMessage},
		{"Blank", Send{ChatID: bob, Text: " \n\t "}, ErrEmptyMessage},
		{"Image without data", Send{ChatID: bob, Text: "cat.png", Type: models.MessageTypeImage}, ErrNotImage},
		{"Unknown conversation", Send{ChatID: "NOBODY", Text: "hi"}, ErrNoConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.store.Chats(alice)
			_, err := f.engine.Send(ctx, tt.send)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, before, f.store.Chats(alice))
		})
	}
	assert.Empty(t, f.store.Chats(bob))

	t.Run("Image", func(t *testing.T) {
		m, err := f.engine.Send(ctx, Send{ChatID: bob, Text: tinyPNG, Type: models.MessageTypeImage})
		require.NoError(t, err)
		assert.Equal(t, models.PreviewImage, f.chat(t, alice, bob).LastMessage)
		assert.Equal(t, models.PreviewImage, f.chat(t, bob, alice).LastMessage)
		assert.Equal(t, models.MessageTypeImage, m.Type)
	})

	t.Run("Signed out", func(t *testing.T) {
		require.NoError(t, f.store.ClearCurrentUser())
		_, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "hi"})
		assert.ErrorIs(t, err, nexusdb.ErrNoIdentity)
	})
}

func TestSendToSelfDoesNotMirror(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, _, err := f.engine.StartByID(ctx, alice)
	require.NoError(t, err)

	_, err = f.engine.Send(ctx, Send{ChatID: alice, Text: "note to self"})
	require.NoError(t, err)

	chats := f.store.Chats(alice)
	require.Len(t, chats, 1)
	assert.Len(t, chats[0].Messages, 2)
	assert.Zero(t, chats[0].UnreadCount)
}

func TestSendToUnknownRecipientSkipsDelivery(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveChats(alice, []models.Chat{{ID: "GHOST", Name: "Ghost"}}, false))

	_, err := f.engine.Send(t.Context(), Send{ChatID: "GHOST", Text: "anyone?"})
	require.NoError(t, err)
	assert.Len(t, f.chat(t, alice, "GHOST").Messages, 1)
	assert.NotContains(t, f.store.Partitions(), nexusdb.ChatsKey("GHOST"))
}

func TestSendToAssistant(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, _, err := f.engine.StartByID(ctx, bot)
	require.NoError(t, err)

	f.ai.On("Respond", mock.Anything, alice,
		mock.MatchedBy(func(c models.Chat) bool {
			// The snapshot is the conversation as it was before the send.
			return c.ID == bot && len(c.Messages) == 1
		}),
		"what is nexus?").Return(nil).Once()

	_, err = f.engine.Send(ctx, Send{ChatID: bot, Text: "what is nexus?"})
	require.NoError(t, err)
	f.engine.Wait()

	f.ai.AssertExpectations(t)
	assert.Len(t, f.chat(t, alice, bot).Messages, 2)
	assert.Empty(t, f.store.Chats(bot), "assistant has no partition")

	t.Run("Image prompt", func(t *testing.T) {
		f.ai.On("Respond", mock.Anything, alice, mock.Anything, "[Image]").Return(nil).Once()
		_, err := f.engine.Send(ctx, Send{ChatID: bot, Text: tinyPNG, Type: models.MessageTypeImage})
		require.NoError(t, err)
		f.engine.Wait()
		f.ai.AssertExpectations(t)
	})

	t.Run("Reply outlives the caller", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		f.ai.On("Respond", mock.Anything, alice, mock.Anything, "late").
			Run(func(args mock.Arguments) {
				assert.NoError(t, args.Get(0).(context.Context).Err())
			}).Return(nil).Once()
		_, err := f.engine.Send(cctx, Send{ChatID: bot, Text: "late"})
		cancel()
		require.NoError(t, err)
		f.engine.Wait()
		f.ai.AssertExpectations(t)
	})
}

func TestDeleteIsLocal(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, _, err := f.engine.StartByID(ctx, bob)
	require.NoError(t, err)
	first, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "first"})
	require.NoError(t, err)
	second, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "second"})
	require.NoError(t, err)

	require.NoError(t, f.engine.Delete(ctx, bob, second.ID))
	local := f.chat(t, alice, bob)
	assert.Equal(t, -1, local.MessageIndex(second.ID))
	assert.Equal(t, "first", local.LastMessage)
	assert.Equal(t, first.Timestamp, local.LastMessageTime)

	remote := f.chat(t, bob, alice)
	assert.GreaterOrEqual(t, remote.MessageIndex(second.ID), 0)
	assert.Equal(t, "second", remote.LastMessage)

	t.Run("Missing message", func(t *testing.T) {
		err := f.engine.Delete(ctx, bob, "nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Missing conversation", func(t *testing.T) {
		err := f.engine.Delete(ctx, "NOBODY", first.ID)
		assert.ErrorIs(t, err, ErrNoConversation)
	})

	t.Run("Last message keeps time", func(t *testing.T) {
		local := f.chat(t, alice, bob)
		for _, m := range local.Messages {
			require.NoError(t, f.engine.Delete(ctx, bob, m.ID))
		}
		empty := f.chat(t, alice, bob)
		assert.Empty(t, empty.Messages)
		assert.Empty(t, empty.LastMessage)
		assert.Equal(t, local.LastMessageTime, empty.LastMessageTime)
	})
}

func TestReact(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, _, err := f.engine.StartByID(ctx, bob)
	require.NoError(t, err)
	m, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "react to me"})
	require.NoError(t, err)

	require.NoError(t, f.engine.React(ctx, bob, m.ID, "🔥"))
	local := f.chat(t, alice, bob)
	assert.Equal(t, "🔥", local.Messages[local.MessageIndex(m.ID)].Reaction)
	remote := f.chat(t, bob, alice)
	assert.Equal(t, "🔥", remote.Messages[remote.MessageIndex(m.ID)].Reaction)

	require.NoError(t, f.engine.React(ctx, bob, m.ID, ""))
	remote = f.chat(t, bob, alice)
	assert.Empty(t, remote.Messages[remote.MessageIndex(m.ID)].Reaction)

	assert.ErrorIs(t, f.engine.React(ctx, bob, "nope", "👍"), models.ErrNotFound)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	_, _, err := f.engine.StartByID(ctx, bob)
	require.NoError(t, err)
	m, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "ping"})
	require.NoError(t, err)

	login(t, f.store, bob)
	require.NoError(t, f.engine.MarkRead(ctx, alice))

	in := f.chat(t, bob, alice)
	assert.Zero(t, in.UnreadCount)
	assert.Equal(t, models.StatusRead, in.Messages[in.MessageIndex(m.ID)].Status)

	out := f.chat(t, alice, bob)
	assert.Equal(t, models.StatusRead, out.Messages[out.MessageIndex(m.ID)].Status, "read receipt")

	t.Run("Nothing to mark", func(t *testing.T) {
		before := f.signals.Load()
		require.NoError(t, f.engine.MarkRead(ctx, alice))
		assert.Equal(t, before, f.signals.Load())
	})

	t.Run("Receipts off", func(t *testing.T) {
		login(t, f.store, alice)
		m, err := f.engine.Send(ctx, Send{ChatID: bob, Text: "pong"})
		require.NoError(t, err)

		require.NoError(t, f.store.UpdateDirectory(func(dir []models.Account) ([]models.Account, error) {
			for i := range dir {
				if dir[i].ID == bob {
					dir[i].Settings.ReadReceipts = false
				}
			}
			return dir, nil
		}))
		login(t, f.store, bob)
		require.NoError(t, f.engine.MarkRead(ctx, alice))

		out := f.chat(t, alice, bob)
		assert.Equal(t, models.StatusSent, out.Messages[out.MessageIndex(m.ID)].Status)
	})
}

func TestApply(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.engine.Apply(ctx, Start{TargetID: bob}))
	require.NoError(t, f.engine.Apply(ctx, Send{ChatID: bob, Text: "via apply"}))

	c, err := f.engine.Conversation(bob)
	require.NoError(t, err)
	last := c.Messages[len(c.Messages)-1]

	require.NoError(t, f.engine.Apply(ctx, React{ChatID: bob, MessageID: last.ID, Emoji: "👍"}))
	require.NoError(t, f.engine.Apply(ctx, MarkRead{ChatID: bob}))
	require.NoError(t, f.engine.Apply(ctx, Delete{ChatID: bob, MessageID: last.ID}))

	found, err := f.engine.Search(bob, "APPLY")
	require.NoError(t, err)
	assert.Empty(t, found)

	remote, err := func() ([]models.Message, error) {
		login(t, f.store, bob)
		defer login(t, f.store, alice)
		return f.engine.Search(alice, "apply")
	}()
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "👍", remote[0].Reaction)

	assert.ErrorIs(t, f.engine.Apply(ctx, Start{TargetID: "NOBODY"}), models.ErrNotFound)
}
