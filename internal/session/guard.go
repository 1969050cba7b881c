package session

import (
	"sync"
	"time"
)

// DefaultDedupeWindow is how long repeated 401s for one key are folded into
// the first.
const DefaultDedupeWindow = 5 * time.Second

// UnauthorizedGuard folds bursts of 401 responses for the same session into a
// single invalidation.
type UnauthorizedGuard struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

// NewUnauthorizedGuard creates a guard. A non-positive window uses the default.
func NewUnauthorizedGuard(window time.Duration) *UnauthorizedGuard {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &UnauthorizedGuard{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// First reports whether this 401 for key is the first one inside the window.
func (g *UnauthorizedGuard) First(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) >= g.window {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = now
	return true
}
