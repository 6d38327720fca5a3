// Package bitbang reconstructs byte-oriented asynchronous serial data from
// the raw sample stream, for pins opened in bit-bang read mode. A falling
// edge from idle high is taken as a start bit, the eight data bits are
// sampled at their nominal centers least-significant first, and a high stop
// bit completes the byte. Frames with a bad stop bit are dropped and the
// decoder resynchronizes on the next falling edge.
package bitbang

import (
	"sync"

	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/gpio"
	"github.com/alicemirror/PiRotary/internal/sampler"
	"github.com/alicemirror/PiRotary/internal/wave"
)

// bufBytes is the capacity of each per-pin cyclic read buffer. When it fills
// the oldest undelivered byte is dropped, matching the sample ring's
// overwrite-oldest policy.
const bufBytes = 4096

type session struct {
	pin       int
	baud      int
	bitMicros uint32

	reading    bool
	lastLevel  uint8
	nextSample uint32
	bitIndex   int
	acc        byte

	buf byteRing
}

// Decoder owns the per-pin serial read sessions and consumes the sample
// stream on the engine's dispatch cycle.
type Decoder struct {
	mu       sync.Mutex
	sessions [gpio.Pins]*session
}

// NewDecoder creates a decoder with no open sessions.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open starts bit-bang reading on a pin at the given baud rate.
func (d *Decoder) Open(pin, baud int) error {
	if pin < 0 || pin >= gpio.Pins {
		return errcode.BadPin
	}
	if baud < wave.MinBaud || baud > wave.MaxBaud {
		return errcode.BadWaveBaud
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessions[pin] != nil {
		return errcode.PinInUse
	}
	d.sessions[pin] = &session{
		pin:       pin,
		baud:      baud,
		bitMicros: uint32(1000000 / baud),
		lastLevel: 1, // assume idle high until told otherwise
	}
	return nil
}

// Read drains up to len(buf) decoded bytes from the pin's cyclic buffer and
// returns how many were copied.
func (d *Decoder) Read(pin int, buf []byte) (int, error) {
	if pin < 0 || pin >= gpio.Pins {
		return 0, errcode.BadPin
	}
	if len(buf) < 1 {
		return 0, errcode.BadSerialCount
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.sessions[pin]
	if s == nil {
		return 0, errcode.NotSerialPin
	}
	return s.buf.drain(buf), nil
}

// Close ends the pin's session, discarding undelivered bytes.
func (d *Decoder) Close(pin int) error {
	if pin < 0 || pin >= gpio.Pins {
		return errcode.BadPin
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessions[pin] == nil {
		return errcode.NotSerialPin
	}
	d.sessions[pin] = nil
	return nil
}

// IsOpen reports whether the pin has a session (for permission accounting).
func (d *Decoder) IsOpen(pin int) bool {
	if pin < 0 || pin >= gpio.Pins {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[pin] != nil
}

// Process feeds one sample to every open session.
func (d *Decoder) Process(smp sampler.Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if s != nil {
			s.feed(smp)
		}
	}
}

func (s *session) feed(smp sampler.Sample) {
	level := uint8((smp.Levels >> s.pin) & 1)

	if !s.reading {
		if s.lastLevel == 1 && level == 0 {
			s.reading = true
			// Center of data bit 0: one bit period past the start edge,
			// plus half a period.
			s.nextSample = smp.Tick + s.bitMicros + s.bitMicros/2
			s.bitIndex = 0
			s.acc = 0
		}
		s.lastLevel = level
		return
	}

	// Sample every bit center the stream has passed. If the sampler runs
	// slower than the bit rate, consecutive centers see the same held
	// level; keeping the tick interval below the bit period is the
	// caller's responsibility.
	for s.reading && int32(smp.Tick-s.nextSample) >= 0 {
		if s.bitIndex < 8 {
			s.acc |= level << s.bitIndex
			s.bitIndex++
			s.nextSample += s.bitMicros
			continue
		}
		// Stop bit center: high accepts the byte, low is a framing
		// error and the byte is dropped.
		if level == 1 {
			s.buf.push(s.acc)
		}
		s.reading = false
	}
	s.lastLevel = level
}

// byteRing is the fixed-capacity cyclic read buffer.
type byteRing struct {
	buf   [bufBytes]byte
	head  int // next write position
	count int
}

func (r *byteRing) push(b byte) {
	if r.count == bufBytes {
		// Full: overwrite the oldest byte.
		r.buf[r.head] = b
		r.head = (r.head + 1) % bufBytes
		return
	}
	r.buf[r.head] = b
	r.head = (r.head + 1) % bufBytes
	r.count++
}

func (r *byteRing) drain(dst []byte) int {
	n := r.count
	if n > len(dst) {
		n = len(dst)
	}
	start := (r.head - r.count + bufBytes) % bufBytes
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(start+i)%bufBytes]
	}
	r.count -= n
	return n
}
