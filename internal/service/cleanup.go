package service

import (
	"context"
	"sync"
	"time"

	"pricelens-gateway/internal/repository"

	"go.uber.org/zap"
)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// Retention is how long review audit rows are kept.
	// Default: 30 days
	Retention time.Duration

	// Interval is how often the cleanup runs.
	// Default: 24 hours
	Interval time.Duration

	// InitialDelay is the wait before the first run after Start.
	// Default: 1 minute
	InitialDelay time.Duration
}

// Sweeper drops idle in-memory state.
type Sweeper interface {
	Sweep() int
}

// CleanupResult reports one cleanup run.
type CleanupResult struct {
	AuditDeleted      int64 `json:"audit_deleted"`
	WorkspacesDropped int   `json:"workspaces_dropped"`
}

// CleanupScheduler periodically prunes the review audit log and drops idle
// review workspaces.
type CleanupScheduler struct {
	audit     repository.AuditRepository
	sweeper   Sweeper
	config    CleanupConfig
	logger    *zap.Logger
	now       func() time.Time
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex
}

// NewCleanupScheduler creates a new cleanup scheduler. Either audit or
// sweeper may be nil.
func NewCleanupScheduler(audit repository.AuditRepository, sweeper Sweeper, config CleanupConfig, logger *zap.Logger) *CleanupScheduler {
	if config.Retention == 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CleanupScheduler{
		audit:   audit,
		sweeper: sweeper,
		config:  config,
		logger:  logger.Named("cleanup"),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info("cleanup scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("retention", s.config.Retention),
	)

	s.wg.Add(1)
	go s.run()
}

func (s *CleanupScheduler) run() {
	defer s.wg.Done()

	initial := time.NewTimer(s.config.InitialDelay)
	defer initial.Stop()

	for {
		select {
		case <-initial.C:
			s.runCleanup()
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.logger.Info("cleanup scheduler stopped")
			return
		}
	}
}

func (s *CleanupScheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		return
	}
	if res.AuditDeleted > 0 || res.WorkspacesDropped > 0 {
		s.logger.Info("cleanup finished",
			zap.Int64("audit_deleted", res.AuditDeleted),
			zap.Int("workspaces_dropped", res.WorkspacesDropped),
		)
	} else {
		s.logger.Debug("nothing to clean up")
	}
}

// Stop stops the cleanup scheduler and waits for a running pass to finish.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// RunNow performs one cleanup pass immediately.
func (s *CleanupScheduler) RunNow(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	if s.sweeper != nil {
		res.WorkspacesDropped = s.sweeper.Sweep()
	}
	if s.audit == nil {
		return res, nil
	}

	deleted, err := s.audit.DeleteOlderThan(ctx, s.now().Add(-s.config.Retention))
	if err != nil {
		return res, err
	}
	res.AuditDeleted = deleted
	return res, nil
}
