// Package engine ties the sampling, waveform and notification components
// into one explicit context object with a clear lifecycle, so independent
// instances (and therefore tests) can coexist in a process.
//
// Three schedules run concurrently once the engine is initialised: the
// sampler at the configured tick, the waveform transmitter on its own
// deadline-driven goroutine, and the dispatch cycle feeding notifications,
// alerts and the serial decoder at roughly 1 kHz.
package engine

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/alicemirror/PiRotary/internal/alert"
	"github.com/alicemirror/PiRotary/internal/bitbang"
	"github.com/alicemirror/PiRotary/internal/clock"
	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/gpio"
	"github.com/alicemirror/PiRotary/internal/notify"
	"github.com/alicemirror/PiRotary/internal/sampler"
	"github.com/alicemirror/PiRotary/internal/wave"
)

// Engine is the GPIO control-plane context. Zero value is not usable; create
// with New, optionally Configure, then Initialise.
type Engine struct {
	dev gpio.Device
	clk clock.Clock

	mu          sync.Mutex
	cfg         Config
	initialised bool

	ring    *sampler.Ring
	smp     *sampler.Sampler
	builder *wave.Builder
	store   *wave.Store
	tx      *wave.Transmitter
	mux     *notify.Mux
	alerts  *alert.Dispatcher
	serial  *bitbang.Decoder

	// cursor belongs to the dispatch goroutine alone; lost and last are
	// shared with Stats readers and alert callbacks, so they are atomics
	// rather than fields under mu (user callbacks run during dispatch and
	// may re-enter engine operations).
	cursor uint64
	primed bool // a real sample has reached the alert dispatcher
	lost   atomic.Uint64
	last   atomic.Uint64 // packed tick<<32 | levels

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func packSample(s sampler.Sample) uint64 {
	return uint64(s.Tick)<<32 | uint64(s.Levels)
}

func unpackSample(v uint64) sampler.Sample {
	return sampler.Sample{Tick: uint32(v >> 32), Levels: uint32(v)}
}

// New creates an engine over the given device and clock with the default
// configuration.
func New(dev gpio.Device, clk clock.Clock) *Engine {
	return &Engine{dev: dev, clk: clk, cfg: DefaultConfig()}
}

// Configure replaces the configuration. It fails with Initialised once the
// engine is running; Close first to reconfigure.
func (e *Engine) Configure(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialised {
		return errcode.Initialised
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

// Initialise validates the configuration, builds the component pipeline and
// starts the sampler and dispatch goroutines.
func (e *Engine) Initialise() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialised {
		return errcode.Initialised
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	e.ring = sampler.NewRing(sampler.Capacity(e.cfg.BufferMillis, e.cfg.TickMicros))
	e.smp = sampler.New(e.dev, e.clk, e.ring, e.cfg.TickMicros)
	e.builder = wave.NewBuilder()
	e.store = wave.NewStore()
	e.tx = wave.NewTransmitter(e.dev, e.clk)
	e.mux = notify.NewMux(e.cfg.ReportBuffer)
	e.alerts = alert.NewDispatcher()
	e.alerts.SetWatchdogSink(e.mux.Watchdog)
	e.serial = bitbang.NewDecoder()
	e.cursor = e.ring.Head()
	e.primed = false
	e.lost.Store(0)
	e.last.Store(0)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.smp.Run(ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.dispatchLoop(ctx)
	}()

	e.initialised = true
	log.Printf("engine: initialised tick=%dus buffer=%dms channels=%d/%d",
		e.cfg.TickMicros, e.cfg.BufferMillis, e.cfg.PrimaryChannel, e.cfg.SecondaryChannel)
	return nil
}

// Close stops transmission and both periodic goroutines. The engine may be
// reconfigured and initialised again afterwards; historical waveform maxima
// do not survive a Close.
func (e *Engine) Close() {
	e.mu.Lock()
	if !e.initialised {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	tx := e.tx
	e.mu.Unlock()

	tx.Stop()
	cancel()
	e.wg.Wait()

	e.mu.Lock()
	e.initialised = false
	e.mu.Unlock()
	log.Printf("engine: closed")
}

// dispatchLoop drains new samples and runs the notification, serial and
// alert consumers on a fixed cycle.
func (e *Engine) dispatchLoop(ctx context.Context) {
	period := uint32(e.cfg.DispatchMicros)
	next := e.clk.Tick()
	for ctx.Err() == nil {
		e.dispatchOnce()
		next += period
		if wait := clock.Elapsed(e.clk.Tick(), next); wait <= 1<<31 {
			e.clk.SleepMicros(wait)
		}
	}
}

// dispatchOnce processes every sample produced since the previous cycle,
// then runs one alert/watchdog dispatch against the newest levels. Level
// changes between cycles are coalesced: alerts see only the latest level.
func (e *Engine) dispatchOnce() {
	var batch [256]sampler.Sample
	seen := false
	for {
		out, next, lost := e.ring.ReadFrom(e.cursor, batch[:])
		e.cursor = next
		e.lost.Add(lost)
		if len(out) == 0 {
			break
		}
		for _, s := range out {
			e.mux.Process(s)
			e.serial.Process(s)
		}
		e.last.Store(packSample(out[len(out)-1]))
		seen = true
	}
	if seen {
		e.primed = true
	}
	if !e.primed {
		// Nothing sampled yet; the alert baseline must come from a real
		// reading, not the zero value of last.
		return
	}
	last := unpackSample(e.last.Load())
	if seen {
		e.alerts.Dispatch(last.Levels, last.Tick)
	} else {
		// No fresh samples this cycle; still advance the watchdogs.
		e.alerts.Dispatch(last.Levels, e.clk.Tick())
	}
}

// Tick returns the current microsecond tick.
func (e *Engine) Tick() uint32 {
	return e.clk.Tick()
}

func (e *Engine) ready() error {
	if !e.initialised {
		return errcode.NotInitialised
	}
	return nil
}

// permitted reports whether every pin in mask is writable.
func (e *Engine) permitted(mask uint32) bool {
	return uint64(mask)&^e.cfg.Permitted == 0
}
