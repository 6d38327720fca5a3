package rotary

// DefaultMaxDigits is the dialled-number length that completes a command.
// Three digits cover 999 commands, which has proven sufficient.
const DefaultMaxDigits = 3

// Decoder accumulates dial-pin edges into digits and numbers. Dialing is
// only accepted while the handset is off hook; hanging up discards any
// partially dialled number.
type Decoder struct {
	maxDigits int

	offHook bool
	dialing bool
	pulses  int
	number  string
}

// NewDecoder creates a decoder emitting numbers of maxDigits digits.
// maxDigits <= 0 selects DefaultMaxDigits.
func NewDecoder(maxDigits int) *Decoder {
	if maxDigits <= 0 {
		maxDigits = DefaultMaxDigits
	}
	return &Decoder{maxDigits: maxDigits}
}

// Edge feeds one level change and returns any events it completes.
func (d *Decoder) Edge(e Edge) []Event {
	switch e.Role {
	case RoleHook:
		return d.hook(e)
	case RoleGate:
		return d.gate(e)
	case RoleCounter:
		d.count(e)
	}
	return nil
}

func (d *Decoder) hook(e Edge) []Event {
	offHook := e.Level == 1
	if offHook == d.offHook {
		return nil
	}
	d.offHook = offHook
	if offHook {
		return []Event{{Type: EventOffHook, Tick: e.Tick}}
	}
	// Hanging up abandons anything partially dialled.
	d.dialing = false
	d.pulses = 0
	d.number = ""
	return []Event{{Type: EventOnHook, Tick: e.Tick}}
}

func (d *Decoder) gate(e Edge) []Event {
	if !d.offHook {
		return nil
	}
	if e.Level == 1 {
		// Dial pulled away from rest: a digit is coming.
		d.dialing = true
		d.pulses = 0
		return nil
	}
	if !d.dialing {
		return nil
	}
	d.dialing = false
	if d.pulses == 0 {
		return nil
	}

	// The dial emits one pulse per position; ten pulses is the 0.
	digit := d.pulses
	if digit >= 10 {
		digit = 0
	}
	d.number += string(rune('0' + digit))

	events := []Event{{Type: EventDigit, Digit: digit, Tick: e.Tick}}
	if len(d.number) >= d.maxDigits {
		events = append(events, Event{Type: EventNumber, Number: d.number, Tick: e.Tick})
		d.number = ""
	}
	return events
}

func (d *Decoder) count(e Edge) {
	// Only rising edges count, and only mid-digit with the handset lifted.
	if d.offHook && d.dialing && e.Level == 1 {
		d.pulses++
	}
}

// OffHook reports whether the handset is lifted.
func (d *Decoder) OffHook() bool {
	return d.offHook
}

// Partial returns the digits dialled so far toward the next number.
func (d *Decoder) Partial() string {
	return d.number
}
