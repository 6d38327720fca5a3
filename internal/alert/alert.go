// Package alert invokes per-pin callbacks when pin levels change, and runs
// the per-pin watchdog timers. Callbacks fire from the engine's dispatch
// cycle, which runs nominally faster than 1 kHz independent of the sampler
// tick: several transitions landing inside one cycle are coalesced and only
// the newest level is reported (latest-wins). The callback cadence therefore
// bounds apparent transition granularity regardless of sampler resolution.
package alert

import (
	"sync"

	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/gpio"
)

// TimeoutLevel is the synthetic level passed to a callback when the pin's
// watchdog expires, distinct from the real levels 0 and 1.
const TimeoutLevel = 2

// MaxWdogMillis bounds the watchdog timeout.
const MaxWdogMillis = 60000

// Func receives the pin, its new level (or TimeoutLevel), and the tick of
// the dispatch cycle that observed the change.
type Func func(pin, level int, tick uint32)

// WatchdogSink receives watchdog expiries, letting the notification
// multiplexer emit flagged reports alongside the synthetic callback.
type WatchdogSink func(pin int, tick, levels uint32)

// Dispatcher holds the per-pin callback registry: a fixed table indexed by
// pin number, at most one callback per pin.
type Dispatcher struct {
	mu         sync.Mutex
	handlers   [gpio.Pins]Func
	wdogMicros [gpio.Pins]uint32 // 0 = disabled
	lastChange [gpio.Pins]uint32
	lastLevels uint32
	primed     bool
	sink       WatchdogSink
}

// NewDispatcher creates a dispatcher with no callbacks registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SetWatchdogSink registers the receiver for watchdog expiries.
func (d *Dispatcher) SetWatchdogSink(sink WatchdogSink) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

// Set registers f as the pin's callback, replacing any previous one.
// A nil f cancels the registration.
func (d *Dispatcher) Set(pin int, f Func) error {
	if pin < 0 || pin >= gpio.Pins {
		return errcode.BadPin
	}
	d.mu.Lock()
	d.handlers[pin] = f
	d.mu.Unlock()
	return nil
}

// SetWatchdog arms a watchdog on the pin: if no level change is observed for
// timeout milliseconds the callback fires with TimeoutLevel and any
// registered sink is told. Timeout 0 cancels the watchdog.
func (d *Dispatcher) SetWatchdog(pin, timeoutMillis int, tick uint32) error {
	if pin < 0 || pin >= gpio.Pins {
		return errcode.BadPin
	}
	if timeoutMillis < 0 || timeoutMillis > MaxWdogMillis {
		return errcode.BadWdogTimeout
	}
	d.mu.Lock()
	d.wdogMicros[pin] = uint32(timeoutMillis) * 1000
	d.lastChange[pin] = tick
	d.mu.Unlock()
	return nil
}

// Dispatch runs one cycle against the newest levels. The first cycle only
// records the baseline. Callbacks run synchronously on the dispatch
// goroutine, while the dispatcher lock is released.
func (d *Dispatcher) Dispatch(levels, tick uint32) {
	type call struct {
		f     Func
		pin   int
		level int
	}
	var calls []call
	var expiries []int

	d.mu.Lock()
	if !d.primed {
		d.lastLevels = levels
		for pin := range d.lastChange {
			d.lastChange[pin] = tick
		}
		d.primed = true
		d.mu.Unlock()
		return
	}

	changed := levels ^ d.lastLevels
	d.lastLevels = levels
	for pin := 0; pin < gpio.Pins; pin++ {
		bit := uint32(1) << pin
		if changed&bit != 0 {
			d.lastChange[pin] = tick
			if f := d.handlers[pin]; f != nil {
				level := 0
				if levels&bit != 0 {
					level = 1
				}
				calls = append(calls, call{f: f, pin: pin, level: level})
			}
			continue
		}
		timeout := d.wdogMicros[pin]
		if timeout == 0 {
			continue
		}
		if tick-d.lastChange[pin] >= timeout {
			// Re-arm so a silent pin fires at most once per window.
			d.lastChange[pin] = tick
			if f := d.handlers[pin]; f != nil {
				calls = append(calls, call{f: f, pin: pin, level: TimeoutLevel})
			}
			expiries = append(expiries, pin)
		}
	}
	sink := d.sink
	d.mu.Unlock()

	for _, c := range calls {
		c.f(c.pin, c.level, tick)
	}
	if sink != nil {
		for _, pin := range expiries {
			sink(pin, tick, levels)
		}
	}
}
