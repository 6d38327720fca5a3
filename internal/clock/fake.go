package clock

import "sync"

// Fake is a manually stepped clock for tests. SleepMicros advances the tick
// instead of blocking, so timed loops run to completion instantly while still
// observing the exact schedule they would follow in real time.
type Fake struct {
	mu  sync.Mutex
	now uint32

	// Slept accumulates every SleepMicros request, in order.
	Slept []uint32
}

// NewFake creates a fake clock at the given starting tick. A start near the
// top of the counter range is useful for exercising wrap behavior.
func NewFake(start uint32) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Tick() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) SleepMicros(n uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += n
	f.Slept = append(f.Slept, n)
}

// Advance moves the clock forward without recording a sleep.
func (f *Fake) Advance(n uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += n
}
