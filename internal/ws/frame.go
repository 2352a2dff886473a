package ws

import (
	"github.com/vmihailenco/msgpack/v5"

	"nexus/internal/storage"
)

type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpRemove Op = "remove"
	OpKeys   Op = "keys"
	OpResult Op = "result"
	OpEvent  Op = "event"
)

// Frame is the unit exchanged between a remote tab and its origin.
// Requests carry an ID that the matching result echoes back.
type Frame struct {
	Op    Op             `msgpack:"op"`
	ID    uint64         `msgpack:"id,omitempty"`
	Key   string         `msgpack:"key,omitempty"`
	Value string         `msgpack:"value,omitempty"`
	Found bool           `msgpack:"found,omitempty"`
	Keys  []string       `msgpack:"keys,omitempty"`
	Err   string         `msgpack:"err,omitempty"`
	Event *storage.Event `msgpack:"event,omitempty"`
}

func (f Frame) Marshal() ([]byte, error) {
	type frame Frame
	return msgpack.Marshal(frame(f))
}

func (f *Frame) Unmarshal(data []byte) error {
	type frame Frame
	return msgpack.Unmarshal(data, (*frame)(f))
}
