package feed

import (
	"sync"

	"meridian/internal/risk"
)

// DefaultCapacity is the number of findings kept for display.
const DefaultCapacity = 10

// Ring keeps the most recent findings, newest first. It is safe for
// concurrent use; the session store is its only writer.
type Ring struct {
	mu       sync.RWMutex
	capacity int
	entries  []risk.FeedEntry
}

func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		capacity: capacity,
		entries:  make([]risk.FeedEntry, 0, capacity),
	}
}

// Push inserts e at the front and evicts the oldest entry past capacity.
func (r *Ring) Push(e risk.FeedEntry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, risk.FeedEntry{})
	}
	copy(r.entries[1:], r.entries[:len(r.entries)-1])
	r.entries[0] = e
}

// Clear empties the buffer.
func (r *Ring) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.entries = r.entries[:0]
}

// Entries returns a copy of the buffer, most recent first.
func (r *Ring) Entries() []risk.FeedEntry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]risk.FeedEntry(nil), r.entries...)
}

func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Ring) Cap() int {
	if r == nil {
		return 0
	}
	return r.capacity
}
