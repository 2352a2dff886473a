package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStorage keeps every key under a fixed namespace prefix so the
// directory can be shared with other tooling.
type PebbleStorage struct {
	db *pebble.DB
}

const pebbleNamespace = "ls:"

func NewPebbleStorage(path string) (*PebbleStorage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &PebbleStorage{db: db}, nil
}

func (s *PebbleStorage) Close() error {
	return s.db.Close()
}

func (s *PebbleStorage) Get(key string) (string, bool, error) {
	v, closer, err := s.db.Get([]byte(pebbleNamespace + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer func() { _ = closer.Close() }()
	return string(v), true, nil
}

func (s *PebbleStorage) Set(key, value string) error {
	return s.db.Set([]byte(pebbleNamespace+key), []byte(value), pebble.Sync)
}

func (s *PebbleStorage) Remove(key string) error {
	return s.db.Delete([]byte(pebbleNamespace+key), pebble.Sync)
}

func (s *PebbleStorage) Keys(prefix string) ([]string, error) {
	p := []byte(pebbleNamespace + prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		keys = append(keys, string(iter.Key()[len(pebbleNamespace):]))
	}
	return keys, iter.Error()
}
