// Package clock provides the microsecond tick used to timestamp samples and
// schedule waveform output. The tick is a 32-bit counter that wraps; elapsed
// time between two ticks must always be computed with uint32 subtraction.
package clock

import "time"

// Clock is the time source injected into the engine. The fake implementation
// allows tests to step time deterministically.
type Clock interface {
	// Tick returns microseconds since the clock started, wrapping at 2^32.
	Tick() uint32

	// SleepMicros pauses the caller for n microseconds.
	SleepMicros(n uint32)
}

// Wall is the real clock, derived from the monotonic reading of time.Since.
type Wall struct {
	start time.Time
}

// NewWall creates a wall clock starting at tick 0.
func NewWall() *Wall {
	return &Wall{start: time.Now()}
}

func (w *Wall) Tick() uint32 {
	return uint32(time.Since(w.start).Microseconds())
}

func (w *Wall) SleepMicros(n uint32) {
	time.Sleep(time.Duration(n) * time.Microsecond)
}

// Elapsed returns the microseconds from an earlier tick to a later one,
// correct across counter wrap.
func Elapsed(from, to uint32) uint32 {
	return to - from
}
