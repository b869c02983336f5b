// Package sequence issues monotonically increasing tokens so that only the
// most recently started request may publish its result.
package sequence

import "sync"

// Guard tracks the latest issued token for one logical resource, such as a
// listing refetch or a client's autocomplete stream.
type Guard struct {
	mu     sync.Mutex
	latest uint64
}

// Issue returns a new token and marks it as the latest.
func (g *Guard) Issue() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latest++
	return g.latest
}

// IsLatest reports whether token is still the most recently issued one.
func (g *Guard) IsLatest(token uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return token == g.latest
}

// Latest returns the most recently issued token, or 0 if none was issued.
func (g *Guard) Latest() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest
}

// Apply runs fn only if token is still the latest, holding the guard so no
// newer token can be issued while fn publishes. It reports whether fn ran.
func (g *Guard) Apply(token uint64, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if token != g.latest {
		return false
	}
	fn()
	return true
}
