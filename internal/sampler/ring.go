package sampler

import "sync"

// Sample is one reading of the whole pin bank.
type Sample struct {
	Tick   uint32 // microseconds since engine start, wraps
	Levels uint32 // bit n holds the level of pin n
}

// Ring is the fixed-capacity sample buffer. The sampler is its single writer;
// consumers read through cursors and tolerate overwritten history. A slow
// consumer silently loses the overwritten samples rather than seeing an
// error.
type Ring struct {
	mu   sync.Mutex
	buf  []Sample
	head uint64 // total samples ever appended
}

// NewRing creates a ring holding capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Sample, capacity)}
}

// Append stores a sample, overwriting the oldest when full.
func (r *Ring) Append(s Sample) {
	r.mu.Lock()
	r.buf[r.head%uint64(len(r.buf))] = s
	r.head++
	r.mu.Unlock()
}

// Head returns the cursor just past the newest sample. A new consumer starts
// from here to see only future samples.
func (r *Ring) Head() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.head
}

// ReadFrom copies the samples between cursor and the newest sample into dst
// and returns the slice written, the advanced cursor, and how many samples
// were lost to overwrite since the cursor was taken.
func (r *Ring) ReadFrom(cursor uint64, dst []Sample) (out []Sample, next uint64, lost uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := uint64(len(r.buf))
	if oldest := r.head - min64(r.head, capacity); cursor < oldest {
		lost = oldest - cursor
		cursor = oldest
	}

	n := r.head - cursor
	if n > uint64(len(dst)) {
		n = uint64(len(dst))
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(cursor+i)%capacity]
	}
	return dst[:n], cursor + n, lost
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
