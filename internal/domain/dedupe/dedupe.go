// Package dedupe defines the interface for telemetry idempotency tracking.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50_000

// Deduper records seen event IDs so a resent telemetry event is scored once.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later resend is accepted. Used when an event
	// was recorded as seen but could not be queued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// slot is one position in the eviction ring.
type slot struct {
	id  string
	seq uint64
}

// inMemoryDeduper keeps the most recent maxSize ids and evicts the oldest
// first. With maxSize <= 0 it never evicts.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // id -> sequence number of its ring slot
	ring    []slot
	next    int // ring index the next id is written to
	seq     uint64
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	d.seq++
	if d.ring != nil {
		old := d.ring[d.next]
		// Only evict if the slot still owns the id; Unrecord and re-record
		// move an id to a newer slot.
		if old.seq != 0 {
			if s, ok := d.seen[old.id]; ok && s == old.seq {
				delete(d.seen, old.id)
			}
		}
		d.ring[d.next] = slot{id: id, seq: d.seq}
		d.next = (d.next + 1) % len(d.ring)
	}
	d.seen[id] = d.seq
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

// Size returns the current number of remembered ids.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
