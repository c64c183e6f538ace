package services

import (
	"sync"
	"time"
)

// windowLimiter allows up to limit events per key in fixed windows. A window
// starts with the first event after the previous one ran out, so the first
// message in a new minute resets the counter and counts itself. It has its
// own mutex and never touches repository state.
type windowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string]*windowCount
}

type windowCount struct {
	start time.Time
	n     int
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{limit: limit, window: window, seen: make(map[string]*windowCount)}
}

// allow counts one event for key at now and reports whether it fits the
// budget. A limit <= 0 disables limiting.
func (l *windowLimiter) allow(key string, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.seen[key]
	if !ok {
		w = &windowCount{start: now}
		l.seen[key] = w
	}
	if now.Sub(w.start) >= l.window {
		w.start = now
		w.n = 0
	}
	if w.n >= l.limit {
		return false
	}
	w.n++
	return true
}

// prune drops keys whose window ended before now.
func (l *windowLimiter) prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, w := range l.seen {
		if now.Sub(w.start) >= l.window {
			delete(l.seen, k)
			n++
		}
	}
	return n
}
