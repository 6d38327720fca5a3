package engine

import (
	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/sampler"
)

// Config is the engine's initialisation surface. Every field is validated
// before any state changes; configuration is rejected once the engine is
// initialised.
type Config struct {
	// TickMicros is the sampling interval: 1, 2, 4, 5, 8 or 10.
	TickMicros int

	// BufferMillis sizes the sample ring as a duration, 100-10000 ms.
	BufferMillis int

	// PrimaryChannel and SecondaryChannel select the hardware timing
	// channels used for sampling and waveform output respectively. The
	// two must keep independent channels so output timing never perturbs
	// the sample schedule.
	PrimaryChannel   int // 0-14
	SecondaryChannel int // 0-6

	// Permitted is the per-pin write-permission bitmask. Writes, triggers
	// and waveform pulses touching a pin outside the mask are refused.
	Permitted uint64

	// DispatchMicros is the notification/alert cycle interval. The cycle
	// nominally runs faster than 1 kHz.
	DispatchMicros int

	// ReportBuffer is the per-handle undelivered report capacity.
	ReportBuffer int
}

// DefaultConfig mirrors the stock daemon configuration: 5 µs ticks, a 120 ms
// sample buffer, timing channels 14 and 5, and all pins writable.
func DefaultConfig() Config {
	return Config{
		TickMicros:       5,
		BufferMillis:     120,
		PrimaryChannel:   14,
		SecondaryChannel: 5,
		Permitted:        0xffffffffffffffff,
		DispatchMicros:   1000,
		ReportBuffer:     64,
	}
}

// Validate checks every field and reports the first offending one.
func (c Config) Validate() error {
	if !sampler.ValidTick(c.TickMicros) {
		return errcode.BadClockMicros
	}
	if c.BufferMillis < 100 || c.BufferMillis > 10000 {
		return errcode.BadBufMillis
	}
	if c.PrimaryChannel < 0 || c.PrimaryChannel > 14 {
		return errcode.BadPrimaryChannel
	}
	if c.SecondaryChannel < 0 || c.SecondaryChannel > 6 {
		return errcode.BadSecondaryChannel
	}
	if c.DispatchMicros <= 0 {
		return errcode.BadClockMicros
	}
	return nil
}
