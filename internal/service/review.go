package service

import (
	"context"
	"errors"
	"time"

	"pricelens-gateway/internal/listing"
	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/repository"
	"pricelens-gateway/internal/review"
	"pricelens-gateway/internal/upstream"

	"go.uber.org/zap"
)

const auditWriteTimeout = 5 * time.Second

// ReviewAPI is the slice of the backend API used by anomaly review.
type ReviewAPI interface {
	review.Backend
	AnomalyPriceHistory(ctx context.Context, id model.ID) ([]model.PricePoint, error)
}

// ReviewConfig configures the review service.
type ReviewConfig struct {
	Policy   review.Policy
	PageSize int
	IdleTTL  time.Duration
}

// AnomalyView is one rendered page of a reviewer's workspace.
type AnomalyView struct {
	review.Snapshot
	// Visible is Items after the reviewer's filters and sort.
	Visible []model.Anomaly `json:"visible"`
}

// ReviewService runs the anomaly review workflow for admins and records
// every settled resolution in the audit log.
type ReviewService struct {
	api      ReviewAPI
	manager  *review.Manager
	audit    repository.AuditRepository
	pageSize int
	logger   *zap.Logger
}

// NewReviewService creates a review service. audit may be nil.
func NewReviewService(api ReviewAPI, audit repository.AuditRepository, cfg ReviewConfig, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	s := &ReviewService{
		api:      api,
		audit:    audit,
		pageSize: cfg.PageSize,
		logger:   logger.Named("review"),
	}
	s.manager = review.NewManager(api, cfg.Policy, cfg.IdleTTL, s.logger, s.record)
	return s
}

// Anomalies returns the reviewer's list, loading it on first use or when
// refresh is set.
func (s *ReviewService) Anomalies(ctx context.Context, reviewer string, page int, refresh bool, f listing.FilterState) (*AnomalyView, error) {
	w := s.manager.Get(reviewer)
	if page < 1 {
		page = 1
	}
	q := upstream.PageQuery{Page: page, PerPage: s.pageSize}
	if refresh || !w.LoadedFor(q) {
		err := w.Load(ctx, q)
		if err != nil && !errors.Is(err, review.ErrStaleLoad) {
			return nil, err
		}
	}
	return &AnomalyView{Snapshot: w.Snapshot(), Visible: w.Items(f)}, nil
}

// PriceHistory returns the price series around an anomaly. It is never
// cached.
func (s *ReviewService) PriceHistory(ctx context.Context, id model.ID) ([]model.PricePoint, error) {
	return s.api.AnomalyPriceHistory(ctx, id)
}

// Confirm opens the confirmation dialog for a resolution.
func (s *ReviewService) Confirm(reviewer string, id model.ID, kind model.Resolution) (review.PendingMutation, error) {
	return s.manager.Get(reviewer).Begin(id, kind)
}

// Cancel closes the confirmation dialog without committing.
func (s *ReviewService) Cancel(reviewer string) review.Snapshot {
	w := s.manager.Get(reviewer)
	w.Cancel()
	return w.Snapshot()
}

// Commit applies the pending resolution optimistically.
func (s *ReviewService) Commit(ctx context.Context, reviewer string) (review.Notice, error) {
	return s.manager.Get(reviewer).Commit(ctx)
}

// Dismiss clears the reviewer's notice.
func (s *ReviewService) Dismiss(reviewer string) review.Snapshot {
	w := s.manager.Get(reviewer)
	w.Dismiss()
	return w.Snapshot()
}

// State returns the reviewer's workspace without loading it.
func (s *ReviewService) State(reviewer string) review.Snapshot {
	return s.manager.Get(reviewer).Snapshot()
}

// Audit lists recorded resolutions.
func (s *ReviewService) Audit(ctx context.Context, f repository.AuditFilter) ([]model.ReviewRecord, int64, error) {
	if s.audit == nil {
		return []model.ReviewRecord{}, 0, nil
	}
	return s.audit.List(ctx, f)
}

// Workspaces returns the number of live reviewer workspaces.
func (s *ReviewService) Workspaces() int {
	return s.manager.Len()
}

// Sweep drops idle workspaces.
func (s *ReviewService) Sweep() int {
	return s.manager.Sweep()
}

// Wait blocks until every background resolution has settled and been
// recorded.
func (s *ReviewService) Wait() {
	s.manager.Wait()
}

// Close stops accepting commits and waits for in-flight resolutions to be
// recorded.
func (s *ReviewService) Close() {
	s.manager.Close()
}

func (s *ReviewService) record(st review.Settlement) {
	if s.audit == nil {
		return
	}
	rec := &model.ReviewRecord{
		MutationID:  st.Mutation.ID,
		AnomalyID:   st.Mutation.AnomalyID.String(),
		Resolution:  st.Mutation.Kind,
		DisplayName: st.Mutation.DisplayName,
		ReviewerID:  st.ReviewerID,
		Outcome:     st.Outcome,
		DurationMs:  st.Duration.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	if st.Err != nil {
		rec.ErrorMessage = st.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if _, err := s.audit.Record(ctx, rec); err != nil {
		s.logger.Error("failed to record review audit entry",
			zap.String("mutation_id", rec.MutationID),
			zap.Error(err),
		)
	}
}
