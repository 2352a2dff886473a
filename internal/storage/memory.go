package storage

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/c-pro/geche"
)

// MemoryStorage is a non-persistent Store, used for ephemeral sessions and tests.
type MemoryStorage struct {
	cache  geche.Geche[string, string]
	closed atomic.Bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{cache: geche.NewMapCache[string, string]()}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	v, err := s.cache.Get(key)
	if err != nil {
		return "", false, nil
	}
	return v, true, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.cache.Set(key, value)
	return nil
}

func (s *MemoryStorage) Remove(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_ = s.cache.Del(key)
	return nil
}

func (s *MemoryStorage) Keys(prefix string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var keys []string
	for k := range s.cache.Snapshot() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) Close() error {
	s.closed.Store(true)
	return nil
}
