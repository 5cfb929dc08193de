// Package dedupe tracks seen possession ids during ingestion.
package dedupe

import (
	"sync"
	"sync/atomic"
)

// Deduper records possession ids so each possession is loaded at most once.
// A duplicate id is the only condition handled here; malformed rows are the
// loader's problem.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it if
	// not. Returns true if id was already seen, false if it was newly
	// recorded.
	SeenAndRecord(id string) bool

	// Size returns the number of distinct ids recorded so far.
	Size() int64
}

// inMemoryDeduper keeps every seen id in a map. Ingestion is a bounded batch
// so there is no eviction: forgetting an id would let its duplicate through.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
}

// NewInMemoryDeduper creates a map-backed Deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	if d.seen == nil {
		d.seen = make(map[string]struct{})
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

// Size returns the current number of recorded ids.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
