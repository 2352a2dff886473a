// Package crosstab turns storage events raised by other tabs into local
// refreshes, so a second window converges on the state the first one wrote.
package crosstab

import (
	"context"
	"log/slog"

	"nexus/internal/nexusdb"
	"nexus/internal/storage"
)

type Bridge struct {
	events        <-chan storage.Event
	currentUserID func() string
	refresh       func()
	log           *slog.Logger
}

// New builds a bridge over events. currentUserID is consulted per event
// because the signed in account may change while the bridge runs.
func New(events <-chan storage.Event, currentUserID func() string, refresh func(), log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		events:        events,
		currentUserID: currentUserID,
		refresh:       refresh,
		log:           log,
	}
}

// Relevant reports whether a write to key affects what userID sees.
func Relevant(key, userID string) bool {
	if key == nexusdb.KeyDirectory {
		return true
	}
	return userID != "" && key == nexusdb.ChatsKey(userID)
}

// Run forwards relevant events until ctx is done or the event channel closes.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return nil
			}
			if !Relevant(ev.Key, b.currentUserID()) {
				continue
			}
			b.log.Debug("refresh from other tab", "key", ev.Key)
			b.refresh()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
