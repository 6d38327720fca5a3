package wave

import (
	"sync"

	"github.com/alicemirror/PiRotary/internal/errcode"
)

// Builder accumulates submitted pulses into the pending, uncompiled waveform.
// Sequences added separately are merged in time order, so a waveform can be
// assembled pin group by pin group. All methods validate fully before
// touching the pending state; a failed add leaves it unchanged.
type Builder struct {
	mu     sync.Mutex
	events []event
	end    uint64 // waveform end: the furthest point any sequence reaches
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddPulses merges the given pulses into the pending waveform and returns the
// new pending pulse total. Pulses with all fields zero are skipped.
func (b *Builder) AddPulses(pulses []Pulse) (int, error) {
	seq := make([]event, 0, len(pulses))
	var at uint64
	for _, p := range pulses {
		if p.On == 0 && p.Off == 0 && p.Delay == 0 {
			continue
		}
		seq = append(seq, event{on: p.On, off: p.Off, start: at})
		at += uint64(p.Delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mergeLocked(seq, at)
}

// mergeLocked validates and commits one pre-built sequence ending at seqEnd.
func (b *Builder) mergeLocked(seq []event, seqEnd uint64) (int, error) {
	if len(b.events)+len(seq) > MaxPulses {
		return 0, errcode.TooManyPulses
	}
	end := b.end
	if seqEnd > end {
		end = seqEnd
	}
	// The duration ceiling shares the pulse-exhaustion code: both mean
	// "the waveform cannot grow by this much, retry with less".
	if end > MaxMicros {
		return 0, errcode.TooManyPulses
	}

	b.events = mergeEvents(b.events, seq)
	b.end = end
	return len(b.events), nil
}

// Pending returns the pending pulse count.
func (b *Builder) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Clear discards the pending waveform.
func (b *Builder) Clear() {
	b.mu.Lock()
	b.events = nil
	b.end = 0
	b.mu.Unlock()
}

// snapshot returns the pending events without consuming them; compilation
// calls reset only once the compiled waveform has been committed.
func (b *Builder) snapshot() ([]event, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events, b.end
}

func (b *Builder) reset() {
	b.Clear()
}
