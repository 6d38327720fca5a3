package wave

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/alicemirror/PiRotary/internal/clock"
	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/gpio"
)

// Transmitter walks a compiled block chain in real time, applying each
// block's masks at its scheduled offset. Output timing runs on its own
// goroutine with deadline-based sleeps, fully decoupled from the sampler.
// Cancellation takes effect only at block boundaries, never mid-block, so the
// pin state is never abandoned mid-pulse.
type Transmitter struct {
	dev gpio.Device
	clk clock.Clock

	mu        sync.Mutex
	playing   bool
	currentID int
	mode      Mode
	done      chan struct{}

	abort atomic.Bool
}

// NewTransmitter creates an idle transmitter driving dev on clk's schedule.
func NewTransmitter(dev gpio.Device, clk clock.Clock) *Transmitter {
	return &Transmitter{dev: dev, clk: clk}
}

// Send begins transmitting w from its first block and returns the block
// count. A playing one-shot waveform is preempted at its next block boundary;
// a repeat waveform must be stopped explicitly first and makes Send fail with
// NotHalted. This asymmetry is deliberate: repeat playback is the mode a
// caller relies on running until told otherwise.
func (t *Transmitter) Send(w *Waveform, mode Mode) (int, error) {
	if !ValidMode(mode) {
		return 0, errcode.BadWaveMode
	}

	t.mu.Lock()
	if t.playing {
		if t.mode == ModeRepeat {
			t.mu.Unlock()
			return 0, errcode.NotHalted
		}
		done := t.done
		t.abort.Store(true)
		t.mu.Unlock()
		<-done
		t.mu.Lock()
	}

	t.playing = true
	t.currentID = w.ID
	t.mode = mode
	t.abort.Store(false)
	t.done = make(chan struct{})
	go t.run(w, mode, t.done)
	t.mu.Unlock()

	return len(w.Blocks), nil
}

func (t *Transmitter) run(w *Waveform, mode Mode, done chan struct{}) {
	defer func() {
		t.mu.Lock()
		t.playing = false
		t.mu.Unlock()
		close(done)
	}()

	next := t.clk.Tick()
	for {
		for i := range w.Blocks {
			if t.abort.Load() {
				return
			}
			b := w.Blocks[i]
			if b.On|b.Off != 0 {
				if err := t.dev.Apply(b.On, b.Off); err != nil {
					log.Printf("wave: apply block %d of wave %d: %v", i, w.ID, err)
				}
			}
			next += b.Delay
			if wait := clock.Elapsed(t.clk.Tick(), next); wait > 0 && wait <= 1<<31 {
				t.clk.SleepMicros(wait)
			}
		}
		if mode != ModeRepeat {
			return
		}
	}
}

// Busy reports whether a waveform is being transmitted.
func (t *Transmitter) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Current returns the id of the waveform being transmitted, if any.
func (t *Transmitter) Current() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentID, t.playing
}

// Stop aborts the current transmission at the next block boundary and waits
// for the transmitter to go idle. Stopping an idle transmitter is a no-op.
func (t *Transmitter) Stop() {
	t.mu.Lock()
	if !t.playing {
		t.mu.Unlock()
		return
	}
	done := t.done
	t.abort.Store(true)
	t.mu.Unlock()
	<-done
}
