// Package autocomplete turns a stream of keystrokes into rate-limited
// suggestion queries.
package autocomplete

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"pricelens-gateway/internal/sequence"

	"go.uber.org/zap"
)

// ErrSuperseded is returned to a caller whose query was replaced by a newer
// keystroke from the same client before its result could be delivered.
var ErrSuperseded = errors.New("autocomplete: superseded by a newer query")

// Source fetches suggestions for a query.
type Source interface {
	Autocomplete(ctx context.Context, query string) ([]string, error)
}

// Options configures a Debouncer.
type Options struct {
	MinLength int
	Delay     time.Duration
	Logger    *zap.Logger
}

// Debouncer issues at most one suggestion request per quiet period for each
// client. Only the latest query's response is ever delivered.
type Debouncer struct {
	source    Source
	minLength int
	delay     time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	guard  sequence.Guard
	cancel context.CancelCauseFunc
}

// New creates a debouncer over source.
func New(source Source, opts Options) *Debouncer {
	if opts.MinLength < 1 {
		opts.MinLength = 2
	}
	if opts.Delay <= 0 {
		opts.Delay = 300 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Debouncer{
		source:    source,
		minLength: opts.MinLength,
		delay:     opts.Delay,
		logger:    opts.Logger.Named("autocomplete"),
		streams:   make(map[string]*stream),
	}
}

// Suggest registers a keystroke from client and blocks until the quiet
// period elapses. Input shorter than the minimum length returns an empty
// result without a request and cancels any pending one. A caller superseded
// by a newer Suggest for the same client gets ErrSuperseded.
func (d *Debouncer) Suggest(ctx context.Context, client, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < d.minLength {
		d.reset(client)
		return []string{}, nil
	}

	s, token, reqCtx := d.enter(ctx, client)
	defer d.leave(client, s, token)

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-reqCtx.Done():
		return nil, d.canceled(ctx, reqCtx)
	case <-timer.C:
	}

	results, err := d.source.Autocomplete(reqCtx, query)
	if !s.guard.IsLatest(token) {
		d.logger.Debug("dropped superseded suggestions", zap.String("client", client), zap.String("query", query))
		return nil, ErrSuperseded
	}
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, d.canceled(ctx, reqCtx)
		}
		return nil, err
	}
	if results == nil {
		results = []string{}
	}
	return results, nil
}

// Pending returns the number of clients with a query in progress.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.streams)
}

func (d *Debouncer) enter(ctx context.Context, client string) (*stream, uint64, context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.streams[client]
	if !ok {
		s = &stream{}
		d.streams[client] = s
	}
	if s.cancel != nil {
		s.cancel(ErrSuperseded)
	}
	reqCtx, cancel := context.WithCancelCause(ctx)
	s.cancel = cancel
	return s, s.guard.Issue(), reqCtx
}

// leave releases the caller's context and forgets the client once its latest
// query is done.
func (d *Debouncer) leave(client string, s *stream, token uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streams[client] == s && s.guard.IsLatest(token) {
		s.cancel(nil)
		delete(d.streams, client)
	}
}

func (d *Debouncer) reset(client string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.streams[client]; ok {
		s.cancel(ErrSuperseded)
		s.guard.Issue()
		delete(d.streams, client)
	}
}

func (d *Debouncer) canceled(parent, reqCtx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(context.Cause(reqCtx), ErrSuperseded) {
		return ErrSuperseded
	}
	return reqCtx.Err()
}
