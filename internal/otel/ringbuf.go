package otel

import (
	"maps"
	"sync"
)

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 1024

// RingBuffer keeps the most recent events in memory.
// Goroutine-safe for concurrent Push and read operations.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Event
	next  int // slot the next Push writes
	count int
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Push adds an event, overwriting the oldest if full. The Extra map is
// copied so later mutation by the emitter cannot alias into the ring.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		e.Extra = maps.Clone(e.Extra)
	}
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// at returns the i-th oldest event. Caller holds r.mu.
func (r *RingBuffer) at(i int) Event {
	oldest := (r.next - r.count + len(r.buf)) % len(r.buf)
	return r.buf[(oldest+i)%len(r.buf)]
}

// Snapshot returns all buffered events, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	return r.Last(r.Cap())
}

// Last returns the n most recent events, oldest first. n <= 0 returns nil.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	if n == 0 {
		return nil
	}
	out := make([]Event, n)
	skip := r.count - n
	for i := range out {
		out[i] = r.at(skip + i)
	}
	return out
}

// ForPage returns buffered events about one page, oldest first.
func (r *RingBuffer) ForPage(page int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for i := 0; i < r.count; i++ {
		if e := r.at(i); e.Page != nil && *e.Page == page {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of events currently in the buffer.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Stats returns counts by EventKind over all buffered events.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[EventKind]int)
	for i := 0; i < r.count; i++ {
		counts[r.at(i).Kind]++
	}
	return counts
}
