package directory

import (
	"time"

	"github.com/c-pro/geche"
)

// attempts tracks consecutive failed logins per identifier.
type attempts struct {
	Failures int64
	Last     int64
}

func (a *attempts) reset(now time.Time) {
	a.Failures = 0
	a.Last = now.Unix()
}

func (a *attempts) increment(now time.Time) {
	a.Failures++
	a.Last = now.Unix()
}

// wait returns how long the caller must wait before the next attempt.
// The first three failures are free, after that the delay grows
// quadratically.
func (a *attempts) wait(now time.Time) time.Duration {
	if a.Failures <= 3 {
		return 0
	}
	next := a.Last + 30*(a.Failures*a.Failures)
	if now.Unix() >= next {
		return 0
	}
	return time.Duration(next-now.Unix()) * time.Second
}

type throttle struct {
	entries *geche.Locker[string, *attempts]
}

func newThrottle() *throttle {
	return &throttle{
		entries: geche.NewLocker[string, *attempts](geche.NewMapCache[string, *attempts]()),
	}
}

// check returns the remaining lockout for key, if any.
func (t *throttle) check(key string, now time.Time) time.Duration {
	tx := t.entries.RLock()
	defer tx.Unlock()
	a, err := tx.Get(key)
	if err != nil {
		return 0
	}
	return a.wait(now)
}

func (t *throttle) fail(key string, now time.Time) {
	tx := t.entries.Lock()
	defer tx.Unlock()
	a, err := tx.Get(key)
	if err != nil {
		a = &attempts{}
		tx.Set(key, a)
	}
	a.increment(now)
}

func (t *throttle) succeed(key string, now time.Time) {
	tx := t.entries.Lock()
	defer tx.Unlock()
	if a, err := tx.Get(key); err == nil {
		a.reset(now)
	}
}
