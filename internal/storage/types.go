package storage

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("storage closed")

// Store is a synchronous string key/value namespace shared by every tab of an origin.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
	// Keys lists the keys starting with prefix in ascending order.
	Keys(prefix string) ([]string, error)
	Close() error
}

// Event describes a mutation made through another tab of the same origin.
type Event struct {
	Key      string `msgpack:"key"`
	OldValue string `msgpack:"oldValue"`
	NewValue string `msgpack:"newValue"`
	Removed  bool   `msgpack:"removed"`
}

type Backend string

const (
	BackendBbolt  Backend = "bbolt"
	BackendPebble Backend = "pebble"
	BackendMemory Backend = "memory"
)

// Open opens the backend at path. The memory backend ignores path.
func Open(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendBbolt, "":
		return NewBboltStorage(path)
	case BackendPebble:
		return NewPebbleStorage(path)
	case BackendMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
