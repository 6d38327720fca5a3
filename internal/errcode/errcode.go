// Package errcode defines the closed set of engine error codes.
// Every fallible engine operation reports exactly one of these codes (or a
// non-negative success value); the negative numbering is the wire numbering
// used by remote clients and must stay stable.
package errcode

import "strconv"

// Errno is a stable engine error identifier. It is an int newtype,
// comparable, allocation-free, and implements error.
type Errno int

const (
	InitFailed          Errno = -1  // engine initialisation failed
	BadPin              Errno = -2  // pin not 0-31
	BadLevel            Errno = -5  // level not 0-1
	BadWdogTimeout      Errno = -15 // watchdog timeout not 0-60000 ms
	BadClockMicros      Errno = -19 // tick interval not 1, 2, 4, 5, 8 or 10
	BadBufMillis        Errno = -20 // sample buffer not 100-10000 ms
	NoHandle            Errno = -24 // notification pool exhausted
	BadHandle           Errno = -25 // unknown notification handle
	BadPrimaryChannel   Errno = -27 // primary timing channel not 0-14
	BadSecondaryChannel Errno = -30 // secondary timing channel not 0-6
	NotInitialised      Errno = -31 // operation before Initialise
	Initialised         Errno = -32 // configuration after Initialise
	BadWaveMode         Errno = -33 // waveform mode not 0-1
	BadWaveBaud         Errno = -35 // baud not 100-250000
	TooManyPulses       Errno = -36 // waveform has too many pulses
	TooManyChars        Errno = -37 // waveform has too many serial chars
	NotSerialPin        Errno = -38 // no serial read in progress on pin
	NotPermitted        Errno = -41 // pin operation not permitted
	BadPulseLen         Errno = -46 // trigger pulse length not 1-50
	BadSerOffset        Errno = -49 // serial data offset beyond wave ceiling
	PinInUse            Errno = -50 // pin already in use
	BadSerialCount      Errno = -51 // must read at least one byte
	NotHalted           Errno = -62 // repeat transmission still active
	BadWaveID           Errno = -66 // non existent wave id
	TooManyBlocks       Errno = -67 // no more timing blocks for waveform
	EmptyWaveform       Errno = -69 // attempt to create an empty waveform
	NoWaveformID        Errno = -70 // waveform id space exhausted
	BadDevice           Errno = -91 // pin device failure
)

var messages = map[Errno]string{
	InitFailed:          "initialisation failed",
	BadPin:              "pin not 0-31",
	BadLevel:            "level not 0-1",
	BadWdogTimeout:      "watchdog timeout not 0-60000",
	BadClockMicros:      "tick interval not 1, 2, 4, 5, 8, or 10",
	BadBufMillis:        "buffer duration not 100-10000",
	NoHandle:            "no notification handle available",
	BadHandle:           "unknown notification handle",
	BadPrimaryChannel:   "primary timing channel not 0-14",
	BadSecondaryChannel: "secondary timing channel not 0-6",
	NotInitialised:      "engine not initialised",
	Initialised:         "engine already initialised",
	BadWaveMode:         "waveform mode not 0-1",
	BadWaveBaud:         "baud rate not 100-250000",
	TooManyPulses:       "waveform has too many pulses",
	TooManyChars:        "waveform has too many chars",
	NotSerialPin:        "no serial read in progress on pin",
	NotPermitted:        "pin operation not permitted",
	BadPulseLen:         "trigger pulse length not 1-50",
	BadSerOffset:        "serial data offset exceeds waveform ceiling",
	PinInUse:            "pin already in use",
	BadSerialCount:      "must read at least a byte at a time",
	NotHalted:           "repeat waveform still transmitting",
	BadWaveID:           "non existent wave id",
	TooManyBlocks:       "no more timing blocks for waveform",
	EmptyWaveform:       "attempt to create an empty waveform",
	NoWaveformID:        "no more waveform ids",
	BadDevice:           "pin device failure",
}

func (e Errno) Error() string {
	if msg, ok := messages[e]; ok {
		return msg
	}
	return "engine error " + strconv.Itoa(int(e))
}

// Of extracts an Errno from an error chain. Errors that are not engine
// codes map to InitFailed, the generic hardware/IO failure bucket.
func Of(err error) (Errno, bool) {
	if err == nil {
		return 0, false
	}
	if e, ok := err.(Errno); ok {
		return e, true
	}
	type wrapper interface{ Unwrap() error }
	if w, ok := err.(wrapper); ok {
		return Of(w.Unwrap())
	}
	return InitFailed, false
}
