package review

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Commit once shutdown has begun.
var ErrClosed = errors.New("review workspace is shutting down")

// settleGroup counts background resolutions. Once closed it refuses new
// ones, so no Add can race the final Wait.
type settleGroup struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (g *settleGroup) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

func (g *settleGroup) release() { g.wg.Done() }

func (g *settleGroup) wait() { g.wg.Wait() }

func (g *settleGroup) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}
