// Package sampler reads the pin bank at a fixed microsecond tick and appends
// the readings to a bounded ring buffer for downstream consumers.
package sampler

import (
	"context"

	"github.com/alicemirror/PiRotary/internal/clock"
	"github.com/alicemirror/PiRotary/internal/gpio"
)

// TickMicros lists the supported tick intervals.
var TickMicros = []int{1, 2, 4, 5, 8, 10}

// ValidTick reports whether micros is a supported tick interval.
func ValidTick(micros int) bool {
	for _, t := range TickMicros {
		if micros == t {
			return true
		}
	}
	return false
}

// Capacity returns the ring capacity in samples for a buffer duration in
// milliseconds at the given tick interval.
func Capacity(bufMillis, tickMicros int) int {
	return bufMillis * 1000 / tickMicros
}

// Sampler is the single writer of the sample ring. It schedules reads by
// deadline: each sample is stamped with its nominal tick, and the loop sleeps
// to the next tick boundary rather than a fixed interval, so timing error
// does not accumulate. With the wall clock the achievable wake granularity is
// OS-bound; when the process falls behind, each missed tick is back-filled
// with the levels current at the late wake, stamped under its nominal time,
// so consumers always see a contiguous tick sequence.
type Sampler struct {
	dev    gpio.Device
	clk    clock.Clock
	ring   *Ring
	period uint32
}

// New creates a sampler writing to ring every tickMicros microseconds.
func New(dev gpio.Device, clk clock.Clock, ring *Ring, tickMicros int) *Sampler {
	return &Sampler{dev: dev, clk: clk, ring: ring, period: uint32(tickMicros)}
}

// Run samples until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	next := s.clk.Tick()
	for ctx.Err() == nil {
		next = s.Step(next)
	}
}

// Step takes one sample stamped with the given tick, then sleeps to the next
// tick boundary and returns it. Split out from Run so tests can drive the
// schedule directly.
func (s *Sampler) Step(tick uint32) (next uint32) {
	s.ring.Append(Sample{Tick: tick, Levels: s.dev.Levels()})

	next = tick + s.period
	now := s.clk.Tick()
	if wait := clock.Elapsed(now, next); wait <= 1<<31 {
		s.clk.SleepMicros(wait)
	}
	return next
}
