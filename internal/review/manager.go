package review

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager owns one Workspace per reviewer.
type Manager struct {
	backend  Backend
	policy   Policy
	idleTTL  time.Duration
	logger   *zap.Logger
	onSettle func(Settlement)
	now      func() time.Time
	settles  settleGroup

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewManager creates a workspace manager. Workspaces idle longer than idleTTL
// are dropped by Sweep once nothing is in flight.
func NewManager(backend Backend, policy Policy, idleTTL time.Duration, logger *zap.Logger, onSettle func(Settlement)) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend:    backend,
		policy:     policy,
		idleTTL:    idleTTL,
		logger:     logger,
		onSettle:   onSettle,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the reviewer's workspace, creating it on first use.
func (m *Manager) Get(reviewer string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workspaces[reviewer]
	if !ok {
		w = NewWorkspace(reviewer, m.backend, m.policy, m.logger, m.onSettle)
		w.now = m.now
		w.settles = &m.settles
		w.lastUsed = m.now()
		m.workspaces[reviewer] = w
	}
	return w
}

// Len returns the number of live workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

// Sweep drops idle workspaces and returns how many were removed.
func (m *Manager) Sweep() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for reviewer, w := range m.workspaces {
		if w.LastUsed().Before(cutoff) && !w.Busy() {
			delete(m.workspaces, reviewer)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("dropped idle review workspaces", zap.Int("count", removed))
	}
	return removed
}

// Wait blocks until every background resolution has settled, including
// those started on workspaces Sweep already dropped. It must not run
// concurrently with Commit; use Close for shutdown.
func (m *Manager) Wait() {
	m.settles.wait()
}

// Close refuses further commits with ErrClosed and waits for in-flight
// resolutions to settle.
func (m *Manager) Close() {
	m.settles.close()
}
