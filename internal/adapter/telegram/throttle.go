package telegram

import (
	"sync"
	"time"
)

// throttle lets one event per key through within a window.
type throttle struct {
	mu     sync.Mutex
	last   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func newThrottle(window time.Duration) *throttle {
	return &throttle{last: make(map[string]time.Time), window: window, now: time.Now}
}

// Allow returns false if key was allowed less than window ago.
func (t *throttle) Allow(key string) bool {
	if t.window <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if at, ok := t.last[key]; ok && now.Sub(at) < t.window {
		return false
	}
	t.last[key] = now
	if len(t.last) > 1024 {
		for k, at := range t.last {
			if now.Sub(at) >= t.window {
				delete(t.last, k)
			}
		}
	}
	return true
}
