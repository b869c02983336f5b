package listing

import "sync"

// Memo caches the last pipeline result keyed on the raw collection's
// generation and the filter state. Callers bump the generation whenever the
// raw collection changes.
type Memo[T any] struct {
	pipeline *Pipeline[T]

	mu      sync.Mutex
	valid   bool
	gen     uint64
	filters FilterState
	result  []T
	misses  int
}

// NewMemo wraps a pipeline.
func NewMemo[T any](p *Pipeline[T]) *Memo[T] {
	return &Memo[T]{pipeline: p}
}

// Apply returns the cached result when (gen, filters) is unchanged and
// recomputes it otherwise. The returned slice is a copy.
func (m *Memo[T]) Apply(gen uint64, items []T, f FilterState) []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.valid || m.gen != gen || m.filters != f {
		m.result = m.pipeline.Apply(items, f)
		m.gen = gen
		m.filters = f
		m.valid = true
		m.misses++
	}

	out := make([]T, len(m.result))
	copy(out, m.result)
	return out
}

// Computations returns how many times the pipeline actually ran.
func (m *Memo[T]) Computations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.misses
}
