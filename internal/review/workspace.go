// Package review holds an admin's anomaly review workspace: the raw anomaly
// list, the confirmation dialog, and optimistic resolutions that remove an
// anomaly from the list before the backend has confirmed the change.
package review

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"pricelens-gateway/internal/listing"
	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/sequence"
	"pricelens-gateway/internal/upstream"
	"pricelens-gateway/pkg/uid"

	"go.uber.org/zap"
)

// State is the workspace's position in the resolve flow.
type State string

const (
	StateIdle       State = "idle"
	StateConfirming State = "confirming"
	StateCommitting State = "committing"
	StateSettled    State = "settled"
)

var (
	ErrUnknownAnomaly    = errors.New("anomaly is not in the review list")
	ErrInvalidResolution = errors.New("resolution must be CONFIRMED_SALE or DATA_ERROR")
	ErrNothingToCommit   = errors.New("no resolution is awaiting confirmation")
	ErrStaleLoad         = errors.New("a newer load superseded this one")
)

// Backend is the slice of the backend API the workspace needs.
type Backend interface {
	ListAnomalies(ctx context.Context, page upstream.PageQuery) (model.Paged[model.Anomaly], error)
	ResolveAnomaly(ctx context.Context, id model.ID, resolution model.Resolution) error
}

// Policy controls what happens when a background resolution fails.
type Policy struct {
	// RollbackOnFailure re-inserts the anomaly at its original position and
	// surfaces the failure on the notice. When false the failure is only
	// logged and recorded.
	RollbackOnFailure bool
	// RequestTimeout bounds the background resolve call.
	RequestTimeout time.Duration
}

// PendingMutation is a resolution captured when the admin opened the
// confirmation dialog.
type PendingMutation struct {
	ID          string           `json:"id"`
	AnomalyID   model.ID         `json:"anomaly_id"`
	Kind        model.Resolution `json:"kind"`
	DisplayName string           `json:"display_name"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Notice is the success message shown once a resolution is committed.
type Notice struct {
	MutationID  string           `json:"mutation_id"`
	DisplayName string           `json:"display_name"`
	Kind        model.Resolution `json:"kind"`
	Message     string           `json:"message"`
	// Failed is set only under RollbackOnFailure.
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MutationStatus tracks one committed resolution until its request settles.
type MutationStatus struct {
	PendingMutation
	State     State     `json:"state"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	SettledAt time.Time `json:"settled_at,omitempty"`
}

// Settlement is reported once per committed resolution.
type Settlement struct {
	Mutation   PendingMutation
	ReviewerID string
	Outcome    string
	Err        error
	Duration   time.Duration
}

// Snapshot is a consistent copy of the workspace.
type Snapshot struct {
	State     State            `json:"state"`
	Items     []model.Anomaly  `json:"items"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	PerPage   int              `json:"per_page"`
	HasMore   bool             `json:"has_more"`
	Pending   *PendingMutation `json:"pending,omitempty"`
	Notice    *Notice          `json:"notice,omitempty"`
	Mutations []MutationStatus `json:"mutations"`
	LoadedAt  time.Time        `json:"loaded_at,omitempty"`
}

// Workspace is one reviewer's review state. All methods are safe for
// concurrent use.
type Workspace struct {
	reviewer string
	backend  Backend
	policy   Policy
	logger   *zap.Logger
	onSettle func(Settlement)
	now      func() time.Time

	guard sequence.Guard
	memo    *listing.Memo[model.Anomaly]
	settles *settleGroup

	mu        sync.Mutex
	state     State
	items     []model.Anomaly
	gen       uint64
	page      model.Paged[model.Anomaly]
	query     upstream.PageQuery
	loadedAt  time.Time
	pending   *PendingMutation
	notice    *Notice
	mutations map[string]*MutationStatus
	order     []string
	lastUsed  time.Time
}

// maxTrackedMutations bounds the settled mutations kept for display.
const maxTrackedMutations = 50

// NewWorkspace creates an empty workspace for reviewer. onSettle may be nil.
func NewWorkspace(reviewer string, backend Backend, policy Policy, logger *zap.Logger, onSettle func(Settlement)) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.RequestTimeout <= 0 {
		policy.RequestTimeout = 15 * time.Second
	}
	w := &Workspace{
		reviewer:  reviewer,
		backend:   backend,
		policy:    policy,
		logger:    logger.Named("review").With(zap.String("reviewer", reviewer)),
		onSettle:  onSettle,
		now:       time.Now,
		memo:      listing.NewMemo(listing.NewAnomalies()),
		settles:   &settleGroup{},
		state:     StateIdle,
		mutations: make(map[string]*MutationStatus),
	}
	w.lastUsed = w.now()
	return w
}

// Load fetches one page of anomalies and replaces the raw list. A load that
// finishes after a newer one was issued is discarded with ErrStaleLoad.
// Anomalies whose resolution is still in flight stay hidden.
func (w *Workspace) Load(ctx context.Context, page upstream.PageQuery) error {
	token := w.guard.Issue()
	w.touch()

	res, err := w.backend.ListAnomalies(ctx, page)
	if err != nil {
		return fmt.Errorf("load anomalies: %w", err)
	}

	applied := w.guard.Apply(token, func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		seen := make(map[model.ID]bool, len(res.Items))
		items := make([]model.Anomaly, 0, len(res.Items))
		for _, a := range res.Items {
			if seen[a.ID] || w.inFlight(a.ID) {
				continue
			}
			seen[a.ID] = true
			items = append(items, a)
		}
		w.items = items
		w.gen++
		w.page = res
		w.page.Items = nil
		w.query = page
		w.loadedAt = w.now()
	})
	if !applied {
		return ErrStaleLoad
	}
	return nil
}

// LoadedFor reports whether the workspace holds the list for page.
func (w *Workspace) LoadedFor(page upstream.PageQuery) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.loadedAt.IsZero() && w.query == page
}

// Begin opens the confirmation dialog for anomalyID. The display name is
// captured from the list now and used for the notice even if the list
// changes before Commit. Begin always starts a fresh confirmation.
func (w *Workspace) Begin(anomalyID model.ID, kind model.Resolution) (PendingMutation, error) {
	if !kind.Valid() {
		return PendingMutation{}, ErrInvalidResolution
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUsed = w.now()

	idx := w.indexOf(anomalyID)
	if idx < 0 {
		return PendingMutation{}, ErrUnknownAnomaly
	}

	m := PendingMutation{
		ID:          uid.NewOrdered(),
		AnomalyID:   anomalyID,
		Kind:        kind,
		DisplayName: w.items[idx].DisplayName(),
		CreatedAt:   w.now(),
	}
	w.pending = &m
	w.notice = nil
	w.state = StateConfirming
	return m, nil
}

// Cancel closes the confirmation dialog without resolving anything.
func (w *Workspace) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUsed = w.now()

	if w.state == StateConfirming {
		w.pending = nil
		w.state = StateIdle
	}
}

// Commit resolves the pending anomaly optimistically. Under one lock it
// closes the confirmation, composes the notice from the captured snapshot and
// removes the anomaly from the list; then it sends exactly one resolve
// request in the background and returns the notice without waiting.
//
// The request outlives ctx's cancellation but keeps its values, so the
// caller's credentials are forwarded.
func (w *Workspace) Commit(ctx context.Context) (Notice, error) {
	w.mu.Lock()
	if w.state != StateConfirming || w.pending == nil {
		w.mu.Unlock()
		return Notice{}, ErrNothingToCommit
	}
	if !w.settles.acquire() {
		w.mu.Unlock()
		return Notice{}, ErrClosed
	}
	w.lastUsed = w.now()

	m := *w.pending
	w.pending = nil

	notice := Notice{
		MutationID:  m.ID,
		DisplayName: m.DisplayName,
		Kind:        m.Kind,
		Message:     fmt.Sprintf("%s was marked as %s.", m.DisplayName, m.Kind.Label()),
	}
	w.notice = &notice

	idx := w.indexOf(m.AnomalyID)
	var removed *model.Anomaly
	if idx >= 0 {
		a := w.items[idx]
		removed = &a
		w.items = slices.Delete(slices.Clone(w.items), idx, idx+1)
		w.gen++
	}

	w.state = StateCommitting
	w.track(&MutationStatus{PendingMutation: m, State: StateCommitting})
	w.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.policy.RequestTimeout)
	go func() {
		defer w.settles.release()
		defer cancel()
		w.settle(reqCtx, m, removed, idx)
	}()

	return notice, nil
}

func (w *Workspace) settle(ctx context.Context, m PendingMutation, removed *model.Anomaly, idx int) {
	start := w.now()
	err := w.backend.ResolveAnomaly(ctx, m.AnomalyID, m.Kind)
	s := Settlement{
		Mutation:   m,
		ReviewerID: w.reviewer,
		Outcome:    model.OutcomeSucceeded,
		Err:        err,
		Duration:   w.now().Sub(start),
	}

	w.mu.Lock()
	if err != nil {
		s.Outcome = model.OutcomeFailed
		if w.policy.RollbackOnFailure {
			if removed != nil {
				w.restore(*removed, idx)
			}
			s.Outcome = model.OutcomeRolledBack
			if w.notice != nil && w.notice.MutationID == m.ID {
				w.notice.Failed = true
				w.notice.Error = fmt.Sprintf("Could not mark %s as %s. It is back in the list.", m.DisplayName, m.Kind.Label())
			}
		}
	}

	if st, ok := w.mutations[m.ID]; ok {
		st.State = StateSettled
		st.Outcome = s.Outcome
		st.SettledAt = w.now()
		if err != nil {
			st.Error = err.Error()
		}
	}
	if w.state == StateCommitting && w.notice != nil && w.notice.MutationID == m.ID {
		w.state = StateSettled
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("anomaly resolution failed",
			zap.String("mutation_id", m.ID),
			zap.String("anomaly_id", m.AnomalyID.String()),
			zap.String("resolution", string(m.Kind)),
			zap.String("outcome", s.Outcome),
			zap.Error(err),
		)
	} else {
		w.logger.Info("anomaly resolved",
			zap.String("mutation_id", m.ID),
			zap.String("anomaly_id", m.AnomalyID.String()),
			zap.String("resolution", string(m.Kind)),
			zap.Duration("duration", s.Duration),
		)
	}

	if w.onSettle != nil {
		w.onSettle(s)
	}
}

// Dismiss clears the notice and any pending confirmation.
func (w *Workspace) Dismiss() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUsed = w.now()

	w.notice = nil
	w.pending = nil
	w.state = StateIdle
}

// Snapshot returns a copy of the workspace state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		State:     w.state,
		Items:     slices.Clone(w.items),
		Total:     w.page.Total,
		Page:      w.page.Page,
		PerPage:   w.page.PerPage,
		HasMore:   w.page.HasMore(),
		LoadedAt:  w.loadedAt,
		Mutations: make([]MutationStatus, 0, len(w.order)),
	}
	if s.Items == nil {
		s.Items = []model.Anomaly{}
	}
	if w.pending != nil {
		p := *w.pending
		s.Pending = &p
	}
	if w.notice != nil {
		n := *w.notice
		s.Notice = &n
	}
	for _, id := range w.order {
		s.Mutations = append(s.Mutations, *w.mutations[id])
	}
	return s
}

// Items returns the raw list filtered and sorted by f. The raw list is
// replaced, never edited in place, so it can be read outside the lock.
func (w *Workspace) Items(f listing.FilterState) []model.Anomaly {
	w.mu.Lock()
	gen, items := w.gen, w.items
	w.mu.Unlock()
	w.touch()
	return w.memo.Apply(gen, items, f)
}

// Wait blocks until every background resolution has settled. It must not
// run concurrently with Commit; use Manager.Close for shutdown.
func (w *Workspace) Wait() {
	w.settles.wait()
}

// Busy reports whether any resolution is still in flight.
func (w *Workspace) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range w.mutations {
		if st.State == StateCommitting {
			return true
		}
	}
	return false
}

// LastUsed returns when the workspace was last touched.
func (w *Workspace) LastUsed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastUsed = w.now()
	w.mu.Unlock()
}

func (w *Workspace) indexOf(id model.ID) int {
	return slices.IndexFunc(w.items, func(a model.Anomaly) bool { return a.ID == id })
}

func (w *Workspace) inFlight(id model.ID) bool {
	for _, st := range w.mutations {
		if st.AnomalyID == id && st.State == StateCommitting {
			return true
		}
	}
	return false
}

// restore puts a rolled-back anomaly back where it was, unless a reload has
// already brought it back.
func (w *Workspace) restore(a model.Anomaly, idx int) {
	if w.indexOf(a.ID) >= 0 {
		return
	}
	idx = min(max(idx, 0), len(w.items))
	w.items = slices.Insert(slices.Clone(w.items), idx, a)
	w.gen++
}

func (w *Workspace) track(st *MutationStatus) {
	w.mutations[st.ID] = st
	w.order = append(w.order, st.ID)

	for len(w.order) > maxTrackedMutations {
		oldest := w.order[0]
		if w.mutations[oldest].State == StateCommitting {
			break
		}
		delete(w.mutations, oldest)
		w.order = w.order[1:]
	}
}
