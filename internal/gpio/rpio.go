//go:build linux

package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// RegisterDevice accesses the pin bank through memory-mapped registers
// (/dev/gpiomem). Reads and writes are register pokes with no syscall per
// pin, which is what the microsecond sampler wants; the trade-off is that it
// bypasses the kernel's line ownership.
type RegisterDevice struct {
	inputMask  uint32
	outputMask uint32
}

// NewRegisterDevice maps the GPIO registers and configures the pins in
// inputMask as pulled-down inputs and the pins in outputMask as outputs.
func NewRegisterDevice(inputMask, outputMask uint32) (*RegisterDevice, error) {
	if inputMask&outputMask != 0 {
		return nil, fmt.Errorf("pins %#x requested as both input and output", inputMask&outputMask)
	}

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("map gpio registers: %w", err)
	}

	for pin := 0; pin < Pins; pin++ {
		bit := uint32(1) << pin
		if inputMask&bit != 0 {
			p := rpio.Pin(pin)
			p.Input()
			p.PullDown()
		} else if outputMask&bit != 0 {
			rpio.Pin(pin).Output()
		}
	}

	return &RegisterDevice{inputMask: inputMask, outputMask: outputMask}, nil
}

func (d *RegisterDevice) Levels() uint32 {
	var levels uint32
	configured := d.inputMask | d.outputMask
	for pin := 0; pin < Pins; pin++ {
		if configured&(1<<pin) == 0 {
			continue
		}
		if rpio.ReadPin(rpio.Pin(pin)) == rpio.High {
			levels |= 1 << pin
		}
	}
	return levels
}

func (d *RegisterDevice) Apply(on, off uint32) error {
	on &= d.outputMask
	off &= d.outputMask
	for pin := 0; pin < Pins; pin++ {
		bit := uint32(1) << pin
		if on&bit != 0 {
			rpio.WritePin(rpio.Pin(pin), rpio.High)
		} else if off&bit != 0 {
			rpio.WritePin(rpio.Pin(pin), rpio.Low)
		}
	}
	return nil
}

// Close drives all outputs low and unmaps the registers.
func (d *RegisterDevice) Close() error {
	for pin := 0; pin < Pins; pin++ {
		if d.outputMask&(1<<pin) != 0 {
			rpio.WritePin(rpio.Pin(pin), rpio.Low)
		}
	}
	return rpio.Close()
}
