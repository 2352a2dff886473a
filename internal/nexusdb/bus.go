package nexusdb

import "sync"

// Bus fans a payload-less change signal out to every subscriber.
// Listeners run synchronously on the publishing goroutine, in
// subscription order, against a snapshot taken at publish time.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func()
	ord  []uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]func())}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is safe.
func (b *Bus) Subscribe(fn func()) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.ord = append(b.ord, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.ord {
				if v == id {
					b.ord = append(b.ord[:i], b.ord[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Bus) Publish() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.ord))
	for _, id := range b.ord {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
