package wave

import (
	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/gpio"
)

// AddSerial synthesizes the pulse train for byte-oriented asynchronous serial
// output on one pin and merges it into the pending waveform. Each byte is
// framed as one start bit (low), eight data bits least-significant first, and
// one stop bit (high). The train begins offset microseconds into the
// waveform; the line is assumed idle high at that point. Returns the new
// pending pulse total.
func (b *Builder) AddSerial(pin, baud int, offset uint32, data []byte) (int, error) {
	if pin < 0 || pin >= gpio.Pins {
		return 0, errcode.BadPin
	}
	if baud < MinBaud || baud > MaxBaud {
		return 0, errcode.BadWaveBaud
	}
	if uint64(offset) > MaxMicros {
		return 0, errcode.BadSerOffset
	}
	if len(data) > MaxChars {
		return 0, errcode.TooManyChars
	}
	if len(data) == 0 {
		return b.Pending(), nil
	}

	// Bit start times are computed from the frame origin on every bit, not
	// by accumulating a rounded period, so rounding error never builds up
	// across a long train.
	bitTime := func(bit int) uint64 {
		return uint64(offset) + uint64(bit)*1000000/uint64(baud)
	}

	mask := uint32(1) << pin
	seq := make([]event, 0, len(data)*4)
	level := uint8(1) // idle high
	bit := 0
	for _, c := range data {
		for i := 0; i < 10; i++ {
			var v uint8
			switch {
			case i == 0: // start bit
				v = 0
			case i == 9: // stop bit
				v = 1
			default:
				v = (c >> (i - 1)) & 1
			}
			if v != level {
				ev := event{start: bitTime(bit)}
				if v == 1 {
					ev.on = mask
				} else {
					ev.off = mask
				}
				seq = append(seq, ev)
				level = v
			}
			bit++
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mergeLocked(seq, bitTime(bit))
}
