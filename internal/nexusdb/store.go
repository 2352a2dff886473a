// Package nexusdb is the reactive facade over persisted client state.
// Every accessor reads fresh from storage; every write may raise a change
// signal that subscribers use to re-pull the slice they display.
package nexusdb

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"nexus/internal/codec"
	"nexus/internal/metrics"
	"nexus/internal/models"
	"nexus/internal/storage"
)

const (
	KeyCurrentUser = "nexus_user"
	KeyDirectory   = "nexus_users_db"
	chatsPrefix    = "nexus_chats_"
)

var (
	ErrNoIdentity = errors.New("no current user")
	// ErrNoChange can be returned from an update function to skip the write.
	ErrNoChange = errors.New("no change")
)

// ChatsKey is the storage key of one account's conversation list.
func ChatsKey(userID string) string {
	return chatsPrefix + userID
}

// ChatsOwner reports the account id a conversation key belongs to.
func ChatsOwner(key string) (string, bool) {
	if !strings.HasPrefix(key, chatsPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, chatsPrefix), true
}

type Store struct {
	kv      storage.Store
	bus     *Bus
	log     *slog.Logger
	metrics *metrics.Metrics

	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

type Option func(*Store)

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithBus(b *Bus) Option {
	return func(s *Store) {
		if b != nil {
			s.bus = b
		}
	}
}

func New(kv storage.Store, opts ...Option) *Store {
	s := &Store{
		kv:  kv,
		bus: NewBus(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to run once per change signal.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// Notify raises a change signal without writing anything.
func (s *Store) Notify() {
	s.metrics.Signal()
	s.bus.Publish()
}

func (s *Store) readText(key string) (string, bool) {
	text, ok, err := s.kv.Get(key)
	if err != nil {
		s.log.Warn("storage read failed", "key", key, "error", err)
		return "", false
	}
	return text, ok
}

// Write encodes value and persists it under key.
func (s *Store) Write(key string, value any, notify bool) error {
	s.mu.Lock()
	err := s.write(key, value)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if notify {
		s.Notify()
	}
	return nil
}

func (s *Store) write(key string, value any) error {
	text, err := codec.Encode(value)
	if err != nil {
		return err
	}
	if err := s.kv.Set(key, text); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	s.metrics.StoreWrite(family(key))
	return nil
}

func family(key string) string {
	switch {
	case key == KeyCurrentUser:
		return "user"
	case key == KeyDirectory:
		return "directory"
	case strings.HasPrefix(key, chatsPrefix):
		return "chats"
	}
	return "other"
}

// CurrentUser returns the signed in account, if any.
func (s *Store) CurrentUser() (models.Account, bool) {
	text, ok := s.readText(KeyCurrentUser)
	if !ok {
		return models.Account{}, false
	}
	a, err := codec.DecodeAccount(text)
	if err != nil {
		s.log.Warn("corrupt current user record", "error", err)
		return models.Account{}, false
	}
	return a, true
}

// RequireCurrentUser is CurrentUser returning ErrNoIdentity when nobody is signed in.
func (s *Store) RequireCurrentUser() (models.Account, error) {
	a, ok := s.CurrentUser()
	if !ok {
		return models.Account{}, ErrNoIdentity
	}
	return a, nil
}

// SaveCurrentUser persists a without its secret and notifies.
func (s *Store) SaveCurrentUser(a models.Account) error {
	return s.Write(KeyCurrentUser, a.Public(), true)
}

func (s *Store) ClearCurrentUser() error {
	s.mu.Lock()
	err := s.kv.Remove(KeyCurrentUser)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear current user: %w", err)
	}
	s.Notify()
	return nil
}

// Chats returns the conversation list owned by userID, in stored order.
func (s *Store) Chats(userID string) []models.Chat {
	text, ok := s.readText(ChatsKey(userID))
	if !ok {
		return []models.Chat{}
	}
	chats, err := codec.DecodeChats(text)
	if err != nil {
		s.log.Warn("corrupt conversation list", "user_id", userID, "error", err)
		return []models.Chat{}
	}
	return chats
}

func (s *Store) SaveChats(userID string, chats []models.Chat, notify bool) error {
	if chats == nil {
		chats = []models.Chat{}
	}
	return s.Write(ChatsKey(userID), chats, notify)
}

// UpdateChats runs fn on a fresh copy of userID's conversation list and
// persists the result. No other update can interleave between the read
// and the write. The signal, if requested, is raised after the write.
func (s *Store) UpdateChats(userID string, notify bool, fn func([]models.Chat) ([]models.Chat, error)) error {
	s.mu.Lock()
	chats, err := fn(s.Chats(userID))
	if err == nil {
		if chats == nil {
			chats = []models.Chat{}
		}
		err = s.write(ChatsKey(userID), chats)
	}
	s.mu.Unlock()

	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	if notify {
		s.Notify()
	}
	return nil
}

// Directory returns every account known to this origin.
func (s *Store) Directory() []models.Account {
	text, ok := s.readText(KeyDirectory)
	if !ok {
		return []models.Account{}
	}
	dir, err := codec.DecodeDirectory(text)
	if err != nil {
		s.log.Warn("corrupt directory", "error", err)
		return []models.Account{}
	}
	return dir
}

func (s *Store) SaveDirectory(dir []models.Account) error {
	if dir == nil {
		dir = []models.Account{}
	}
	return s.Write(KeyDirectory, dir, true)
}

// UpdateDirectory is the directory counterpart of UpdateChats. It always notifies.
func (s *Store) UpdateDirectory(fn func([]models.Account) ([]models.Account, error)) error {
	s.mu.Lock()
	dir, err := fn(s.Directory())
	if err == nil {
		if dir == nil {
			dir = []models.Account{}
		}
		err = s.write(KeyDirectory, dir)
	}
	s.mu.Unlock()

	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	s.Notify()
	return nil
}

// Lookup finds an account in the directory by exact id.
func (s *Store) Lookup(id string) (models.Account, bool) {
	for _, a := range s.Directory() {
		if a.ID == id {
			return a, true
		}
	}
	return models.Account{}, false
}

// MoveChats re-keys the conversation list of from to to. The old key is removed.
func (s *Store) MoveChats(from, to string) error {
	if from == to {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	text, ok := s.readText(ChatsKey(from))
	if !ok {
		return nil
	}
	if err := s.kv.Set(ChatsKey(to), text); err != nil {
		return fmt.Errorf("move chats: %w", err)
	}
	if err := s.kv.Remove(ChatsKey(from)); err != nil {
		return fmt.Errorf("move chats: %w", err)
	}
	s.metrics.StoreWrite("chats")
	return nil
}

// Partitions lists the account ids that own a stored conversation list.
func (s *Store) Partitions() []string {
	keys, err := s.kv.Keys(chatsPrefix)
	if err != nil {
		s.log.Warn("list partitions failed", "error", err)
		return nil
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := ChatsOwner(k); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
