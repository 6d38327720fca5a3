// Package wave builds, compiles and transmits precisely timed output
// waveforms. A waveform is assembled from pulse descriptors merged in time
// order, compiled into an immutable chain of fixed-duration timing blocks,
// and played back by a dedicated transmitter decoupled from the sampler.
package wave

// Mode selects one-shot or endless playback.
type Mode int

const (
	ModeOneShot Mode = 0
	ModeRepeat  Mode = 1
)

// ValidMode reports whether m is a defined playback mode.
func ValidMode(m Mode) bool {
	return m == ModeOneShot || m == ModeRepeat
}

const (
	blockGroups = 4

	// MaxPulses bounds the pulses of the pending waveform.
	MaxPulses = blockGroups * 3000

	// MaxChars bounds the bytes one waveform may carry as serial data.
	MaxChars = blockGroups * 256

	// MinBaud and MaxBaud bound serial synthesis rates.
	MinBaud = 100
	MaxBaud = 250000

	// MaxMicros is the waveform duration ceiling: half an hour.
	MaxMicros = 30 * 60 * 1000000

	// MaxWaves bounds the live compiled waveforms.
	MaxWaves = 512

	// MaxBlockMicros is the longest delay a single timing block can hold.
	// Longer pulse delays are chunked into filler blocks.
	MaxBlockMicros = 1000000

	// MaxBlocks is the timing block pool shared by all live waveforms.
	MaxBlocks = 2 * MaxPulses
)

// Pulse is a caller-submitted waveform element: pins to drive high, pins to
// drive low, then a delay before the next pulse. A pulse with every field
// zero is meaningless and ignored.
type Pulse struct {
	On    uint32
	Off   uint32
	Delay uint32 // microseconds
}

// Block is one unit of a compiled waveform: masks to apply, then a hold.
// Filler blocks produced by delay chunking carry zero masks.
type Block struct {
	On    uint32
	Off   uint32
	Delay uint32 // microseconds
}

// Waveform is an immutable compiled block chain.
type Waveform struct {
	ID     int
	Blocks []Block
	Micros uint64 // total duration
	Pulses int    // pulses submitted to the builder
}

// event is a pulse pinned to its absolute start offset within the waveform.
// The pending waveform is kept in this form so merges stay a stable
// interleave of already-sorted sequences.
type event struct {
	on    uint32
	off   uint32
	start uint64
}

// mergeEvents interleaves two start-sorted sequences, keeping earlier
// submissions first on equal offsets.
func mergeEvents(a, b []event) []event {
	out := make([]event, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].start < a[i].start {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
