package autocomplete

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu      sync.Mutex
	queries []string
	block   map[string]chan struct{}
	err     error
}

func (f *fakeSource) Autocomplete(ctx context.Context, query string) ([]string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	ch := f.block[query]
	err := f.err
	f.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []string{query + "hone", query + "ad"}, nil
}

func (f *fakeSource) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (d *Debouncer) generation(client string) uint64 {
	d.mu.Lock()
	s := d.streams[client]
	d.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.guard.Latest()
}

func TestSuggest_ShortInputSkipsRequest(t *testing.T) {
	src := &fakeSource{}
	d := New(src, Options{MinLength: 2, Delay: 10 * time.Millisecond})

	got, err := d.Suggest(context.Background(), "c1", "i")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	got, err = d.Suggest(context.Background(), "c1", "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, src.seen())
}

func TestSuggest_OnlyQueryAfterShortInputIsSent(t *testing.T) {
	src := &fakeSource{}
	d := New(src, Options{MinLength: 2, Delay: 20 * time.Millisecond})

	_, err := d.Suggest(context.Background(), "c1", "i")
	require.NoError(t, err)

	start := time.Now()
	got, err := d.Suggest(context.Background(), "c1", "ip")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, []string{"iphone", "ipad"}, got)
	assert.Equal(t, []string{"ip"}, src.seen())
	assert.Zero(t, d.Pending())
}

func TestSuggest_NewerKeystrokeSupersedesPending(t *testing.T) {
	src := &fakeSource{}
	d := New(src, Options{MinLength: 2, Delay: 100 * time.Millisecond})

	errs := make(chan error, 2)
	for i, q := range []string{"iph", "ipho"} {
		go func() {
			_, err := d.Suggest(context.Background(), "c1", q)
			errs <- err
		}()
		want := uint64(i + 1)
		require.Eventually(t, func() bool { return d.generation("c1") == want }, time.Second, time.Millisecond)
	}

	got, err := d.Suggest(context.Background(), "c1", "iphone")
	require.NoError(t, err)
	assert.Equal(t, []string{"iphonehone", "iphonead"}, got)

	assert.ErrorIs(t, <-errs, ErrSuperseded)
	assert.ErrorIs(t, <-errs, ErrSuperseded)
	assert.Equal(t, []string{"iphone"}, src.seen())
}

func TestSuggest_LateResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{block: map[string]chan struct{}{"ab": release}}
	d := New(src, Options{MinLength: 2, Delay: time.Millisecond})

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Suggest(context.Background(), "c1", "ab")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(src.seen()) == 1 }, time.Second, time.Millisecond)

	got, err := d.Suggest(context.Background(), "c1", "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"abchone", "abcad"}, got)

	close(release)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)
}

func TestSuggest_ShortInputCancelsPending(t *testing.T) {
	src := &fakeSource{}
	d := New(src, Options{MinLength: 2, Delay: 100 * time.Millisecond})

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Suggest(context.Background(), "c1", "ip")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return d.generation("c1") == 1 }, time.Second, time.Millisecond)

	got, err := d.Suggest(context.Background(), "c1", "i")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Empty(t, src.seen())
}

func TestSuggest_ClientsAreIndependent(t *testing.T) {
	src := &fakeSource{}
	d := New(src, Options{MinLength: 2, Delay: 20 * time.Millisecond})

	var wg sync.WaitGroup
	results := make([][]string, 2)
	for i, client := range []string{"a", "b"} {
		i, client := i, client
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := d.Suggest(context.Background(), client, "tv")
			assert.NoError(t, err)
			results[i] = got
		}()
	}
	wg.Wait()

	assert.Len(t, src.seen(), 2)
	assert.Equal(t, results[0], results[1])
}

func TestSuggest_ErrorsAndCancellation(t *testing.T) {
	t.Run("source error", func(t *testing.T) {
		boom := errors.New("boom")
		d := New(&fakeSource{err: boom}, Options{Delay: time.Millisecond})
		_, err := d.Suggest(context.Background(), "c1", "tv")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("caller canceled", func(t *testing.T) {
		src := &fakeSource{}
		d := New(src, Options{Delay: time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := d.Suggest(ctx, "c1", "tv")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Empty(t, src.seen())
		assert.Zero(t, d.Pending())
	})
}
