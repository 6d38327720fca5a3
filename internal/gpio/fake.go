package gpio

import "sync"

// Write records one Apply call for test inspection.
type Write struct {
	On  uint32
	Off uint32
}

// Fake is a test double for the pin bank. Levels may be scripted sample by
// sample, or driven through SetLevels. Apply feeds back into the level mask,
// so transmitted waveforms are visible to a sampler reading the same fake.
type Fake struct {
	mu sync.Mutex

	// Script contains level masks to return, one per Levels call.
	// When exhausted the last mask keeps being returned.
	Script []uint32

	index  int
	levels uint32

	// Writes collects every Apply call in order.
	Writes []Write

	// ApplyError, if set, is returned by Apply.
	ApplyError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFake creates a fake with all pins low and no script.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Levels() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Script) == 0 {
		return f.levels
	}
	levels := f.Script[f.index]
	if f.index < len(f.Script)-1 {
		f.index++
	}
	f.levels = levels
	return levels
}

func (f *Fake) Apply(on, off uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ApplyError != nil {
		return f.ApplyError
	}
	f.Writes = append(f.Writes, Write{On: on, Off: off})
	f.levels = (f.levels | on) &^ off
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// SetLevels replaces the current level mask, simulating external pin changes.
func (f *Fake) SetLevels(levels uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = levels
}

// SetPin drives a single pin of the level mask.
func (f *Fake) SetPin(pin int, high bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if high {
		f.levels |= 1 << pin
	} else {
		f.levels &^= 1 << pin
	}
}

// WriteLog returns a copy of the recorded Apply calls.
func (f *Fake) WriteLog() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.Writes...)
}
