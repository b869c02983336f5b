package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pricelens-gateway/internal/listing"
	"pricelens-gateway/internal/model"
	"pricelens-gateway/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type resolveCall struct {
	ID         model.ID
	Resolution model.Resolution
}

type fakeBackend struct {
	mu      sync.Mutex
	items   []model.Anomaly
	listFn  func(ctx context.Context, page upstream.PageQuery) (model.Paged[model.Anomaly], error)
	calls   []resolveCall
	started chan resolveCall
	gate    chan error
}

func newFakeBackend(items []model.Anomaly) *fakeBackend {
	return &fakeBackend{
		items:   items,
		started: make(chan resolveCall, 16),
		gate:    make(chan error, 16),
	}
}

func (f *fakeBackend) ListAnomalies(ctx context.Context, page upstream.PageQuery) (model.Paged[model.Anomaly], error) {
	if f.listFn != nil {
		return f.listFn(ctx, page)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := append([]model.Anomaly(nil), f.items...)
	return model.Paged[model.Anomaly]{Items: items, Total: len(items), Page: 1, PerPage: 50}, nil
}

func (f *fakeBackend) ResolveAnomaly(ctx context.Context, id model.ID, resolution model.Resolution) error {
	call := resolveCall{ID: id, Resolution: resolution}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	f.started <- call

	select {
	case err := <-f.gate:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) resolveCalls() []resolveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]resolveCall(nil), f.calls...)
}

func fiveAnomalies() []model.Anomaly {
	out := make([]model.Anomaly, 0, 5)
	for i := 1; i <= 5; i++ {
		out = append(out, model.Anomaly{
			ID:           model.ID(fmt.Sprint(i)),
			ProductName:  fmt.Sprintf("Product %d", i),
			RetailerName: "Shop",
			Price:        float64(10 * i),
			OldPrice:     100,
		})
	}
	return out
}

type settlements struct {
	mu  sync.Mutex
	all []Settlement
}

func (s *settlements) record(st Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, st)
}

func (s *settlements) list() []Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Settlement(nil), s.all...)
}

func newLoadedWorkspace(t *testing.T, backend *fakeBackend, policy Policy) (*Workspace, *settlements) {
	t.Helper()
	rec := &settlements{}
	w := NewWorkspace("admin-1", backend, policy, nil, rec.record)
	require.NoError(t, w.Load(context.Background(), upstream.PageQuery{Page: 1, PerPage: 50}))
	t.Cleanup(func() {
		close(backend.gate)
		w.Wait()
	})
	return w, rec
}

func ids(items []model.Anomaly) []model.ID {
	out := make([]model.ID, len(items))
	for i, a := range items {
		out[i] = a.ID
	}
	return out
}

func TestCommit_RemovesItemBeforeRequestSettles(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, rec := newLoadedWorkspace(t, backend, Policy{})

	_, err := w.Begin("3", model.ResolutionConfirmedSale)
	require.NoError(t, err)
	assert.Equal(t, StateConfirming, w.Snapshot().State)

	notice, err := w.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Product 3 (Shop) was marked as a confirmed sale.", notice.Message)

	snap := w.Snapshot()
	assert.Len(t, snap.Items, 4)
	assert.Equal(t, []model.ID{"1", "2", "4", "5"}, ids(snap.Items))
	assert.Equal(t, StateCommitting, snap.State)
	assert.Nil(t, snap.Pending)
	require.NotNil(t, snap.Notice)
	assert.True(t, w.Busy())

	<-backend.started
	backend.gate <- nil
	w.Wait()

	snap = w.Snapshot()
	assert.Equal(t, StateSettled, snap.State)
	assert.Len(t, snap.Items, 4)
	assert.Equal(t, []resolveCall{{ID: "3", Resolution: model.ResolutionConfirmedSale}}, backend.resolveCalls())

	got := rec.list()
	require.Len(t, got, 1)
	assert.Equal(t, model.OutcomeSucceeded, got[0].Outcome)
	assert.Equal(t, "admin-1", got[0].ReviewerID)
	require.Len(t, snap.Mutations, 1)
	assert.Equal(t, StateSettled, snap.Mutations[0].State)
}

func TestCommit_UsesDisplayNameCapturedAtConfirmation(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, _ := newLoadedWorkspace(t, backend, Policy{})

	pending, err := w.Begin("3", model.ResolutionDataError)
	require.NoError(t, err)
	assert.Equal(t, "Product 3 (Shop)", pending.DisplayName)

	// A concurrent refetch replaces anomaly 3 with different data.
	backend.mu.Lock()
	backend.items[2].ProductName = "Renamed"
	backend.mu.Unlock()
	require.NoError(t, w.Load(context.Background(), upstream.PageQuery{Page: 1}))

	notice, err := w.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Product 3 (Shop)", notice.DisplayName)
	assert.Equal(t, "Product 3 (Shop) was marked as a data error.", notice.Message)

	<-backend.started
	backend.gate <- nil
}

func TestCommit_LenientFailureKeepsItemRemoved(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, rec := newLoadedWorkspace(t, backend, Policy{RollbackOnFailure: false})

	_, err := w.Begin("3", model.ResolutionConfirmedSale)
	require.NoError(t, err)
	_, err = w.Commit(context.Background())
	require.NoError(t, err)

	<-backend.started
	backend.gate <- errors.New("backend down")
	w.Wait()

	snap := w.Snapshot()
	assert.Equal(t, []model.ID{"1", "2", "4", "5"}, ids(snap.Items))
	require.NotNil(t, snap.Notice)
	assert.False(t, snap.Notice.Failed)
	assert.Empty(t, snap.Notice.Error)

	got := rec.list()
	require.Len(t, got, 1)
	assert.Equal(t, model.OutcomeFailed, got[0].Outcome)
	assert.EqualError(t, got[0].Err, "backend down")
	assert.Equal(t, model.OutcomeFailed, snap.Mutations[0].Outcome)
}

func TestCommit_StrictFailureRestoresItemAtOriginalIndex(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, rec := newLoadedWorkspace(t, backend, Policy{RollbackOnFailure: true})

	_, err := w.Begin("3", model.ResolutionConfirmedSale)
	require.NoError(t, err)
	_, err = w.Commit(context.Background())
	require.NoError(t, err)
	assert.Len(t, w.Snapshot().Items, 4)

	<-backend.started
	backend.gate <- errors.New("backend down")
	w.Wait()

	snap := w.Snapshot()
	assert.Equal(t, []model.ID{"1", "2", "3", "4", "5"}, ids(snap.Items))
	require.NotNil(t, snap.Notice)
	assert.True(t, snap.Notice.Failed)
	assert.Contains(t, snap.Notice.Error, "Product 3 (Shop)")

	got := rec.list()
	require.Len(t, got, 1)
	assert.Equal(t, model.OutcomeRolledBack, got[0].Outcome)
}

func TestCommit_IndependentMutationsRunConcurrently(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, rec := newLoadedWorkspace(t, backend, Policy{})

	for _, id := range []model.ID{"1", "4"} {
		_, err := w.Begin(id, model.ResolutionDataError)
		require.NoError(t, err)
		_, err = w.Commit(context.Background())
		require.NoError(t, err)
	}

	// Both requests are in flight at once.
	first, second := <-backend.started, <-backend.started
	assert.ElementsMatch(t, []model.ID{"1", "4"}, []model.ID{first.ID, second.ID})
	assert.Equal(t, []model.ID{"2", "3", "5"}, ids(w.Snapshot().Items))

	backend.gate <- nil
	backend.gate <- nil
	w.Wait()

	assert.Len(t, backend.resolveCalls(), 2)
	assert.Len(t, rec.list(), 2)
	assert.False(t, w.Busy())
}

func TestCommit_RequestOutlivesCallerContext(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, rec := newLoadedWorkspace(t, backend, Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := w.Begin("2", model.ResolutionConfirmedSale)
	require.NoError(t, err)
	_, err = w.Commit(ctx)
	require.NoError(t, err)
	cancel()

	<-backend.started
	backend.gate <- nil
	w.Wait()
	assert.Equal(t, model.OutcomeSucceeded, rec.list()[0].Outcome)
}

func TestCancelAndDismiss(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, _ := newLoadedWorkspace(t, backend, Policy{})

	_, err := w.Begin("2", model.ResolutionConfirmedSale)
	require.NoError(t, err)
	w.Cancel()

	snap := w.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Pending)
	assert.Len(t, snap.Items, 5)

	_, err = w.Commit(context.Background())
	assert.ErrorIs(t, err, ErrNothingToCommit)
	assert.Empty(t, backend.resolveCalls())

	_, err = w.Begin("2", model.ResolutionConfirmedSale)
	require.NoError(t, err)
	_, err = w.Commit(context.Background())
	require.NoError(t, err)
	w.Dismiss()

	snap = w.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Notice)

	<-backend.started
	backend.gate <- nil
	w.Wait()
	// Settling after a dismiss leaves the workspace idle.
	assert.Equal(t, StateIdle, w.Snapshot().State)
}

func TestBegin_Validation(t *testing.T) {
	backend := newFakeBackend(fiveAnomalies())
	w, _ := newLoadedWorkspace(t, backend, Policy{})

	_, err := w.Begin("2", "MAYBE")
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = w.Begin("99", model.ResolutionConfirmedSale)
	assert.ErrorIs(t, err, ErrUnknownAnomaly)
}

func TestLoad_DiscardsStaleResponse(t *testing.T) {
	backend := newFakeBackend(nil)

	slowRelease := make(chan struct{})
	backend.listFn = func(ctx context.Context, page upstream.PageQuery) (model.Paged[model.Anomaly], error) {
		if page.Page == 1 {
			<-slowRelease
			return model.Paged[model.Anomaly]{Items: []model.Anomaly{{ID: "old"}}, Total: 1, Page: 1}, nil
		}
		return model.Paged[model.Anomaly]{Items: []model.Anomaly{{ID: "new"}}, Total: 1, Page: page.Page}, nil
	}
	w := NewWorkspace("admin-1", backend, Policy{}, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Load(context.Background(), upstream.PageQuery{Page: 1}) }()

	// Let the slow load issue its token first.
	require.Eventually(t, func() bool { return w.guard.IsLatest(1) }, time.Second, time.Millisecond)
	require.NoError(t, w.Load(context.Background(), upstream.PageQuery{Page: 2}))

	close(slowRelease)
	assert.ErrorIs(t, <-errCh, ErrStaleLoad)
	assert.Equal(t, []model.ID{"new"}, ids(w.Snapshot().Items))
}

func TestLoad_HidesInFlightAndDuplicateItems(t *testing.T) {
	items := fiveAnomalies()
	items = append(items, items[0])
	backend := newFakeBackend(items)
	w, _ := newLoadedWorkspace(t, backend, Policy{})
	assert.Len(t, w.Snapshot().Items, 5)

	_, err := w.Begin("3", model.ResolutionConfirmedSale)
	require.NoError(t, err)
	_, err = w.Commit(context.Background())
	require.NoError(t, err)
	<-backend.started

	require.NoError(t, w.Load(context.Background(), upstream.PageQuery{Page: 1}))
	assert.Equal(t, []model.ID{"1", "2", "4", "5"}, ids(w.Snapshot().Items))

	backend.gate <- nil
}

func TestItems_AppliesListingPipeline(t *testing.T) {
	backend := newFakeBackend([]model.Anomaly{
		{ID: "1", Price: 100, OldPrice: 80, PercentageChange: 25},
		{ID: "2", Price: 50, OldPrice: 100, PercentageChange: -50},
	})
	w, _ := newLoadedWorkspace(t, backend, Policy{})

	f := listing.FilterState{Category: listing.All, SortBy: listing.SortChangeDesc}
	assert.Equal(t, []model.ID{"2", "1"}, ids(w.Items(f)))
	assert.Equal(t, []model.ID{"2", "1"}, ids(w.Items(f)))
	assert.Equal(t, 1, w.memo.Computations())
}

func TestManager_SweepsIdleWorkspaces(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(newFakeBackend(nil), Policy{}, time.Minute, nil, nil)
	m.now = func() time.Time { return now }

	a := m.Get("a")
	assert.Same(t, a, m.Get("a"))
	m.Get("b")
	assert.Equal(t, 2, m.Len())

	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, m.Sweep())

	m.Get("b").Cancel()
	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
	m.Wait()
}

func TestManager_CloseWaitsForSweptWorkspaces(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := newFakeBackend([]model.Anomaly{
		{ID: "1", ProductName: "TV"},
		{ID: "2", ProductName: "Radio"},
	})
	m := NewManager(backend, Policy{}, time.Minute, nil, nil)
	m.now = func() time.Time { return now }

	a := m.Get("a")
	require.NoError(t, a.Load(context.Background(), upstream.PageQuery{Page: 1}))
	_, err := a.Begin("1", model.ResolutionConfirmedSale)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, m.Sweep())

	// The handler still holds the dropped workspace.
	_, err = a.Commit(context.Background())
	require.NoError(t, err)
	<-backend.started

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	isClosed := func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}
	assert.Never(t, isClosed, 50*time.Millisecond, 5*time.Millisecond)

	backend.gate <- nil
	require.Eventually(t, isClosed, time.Second, 5*time.Millisecond)

	b := m.Get("b")
	require.NoError(t, b.Load(context.Background(), upstream.PageQuery{Page: 1}))
	_, err = b.Begin("2", model.ResolutionDataError)
	require.NoError(t, err)
	_, err = b.Commit(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotNil(t, b.Snapshot().Pending)
	assert.Len(t, b.Snapshot().Items, 2)
}
