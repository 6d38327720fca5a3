//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevDevice accesses the pin bank through the Linux GPIO character device.
// It is the safe default backend: no /dev/mem access, works with the kernel's
// pin ownership model, but each Levels call reads lines one by one.
type CdevDevice struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
}

// NewCdevDevice requests the pins in inputMask as inputs and the pins in
// outputMask as outputs on gpiochip0. A pin may not appear in both masks.
func NewCdevDevice(inputMask, outputMask uint32) (*CdevDevice, error) {
	if inputMask&outputMask != 0 {
		return nil, fmt.Errorf("pins %#x requested as both input and output", inputMask&outputMask)
	}

	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &CdevDevice{
		chip:    chip,
		inputs:  make(map[int]*gpiocdev.Line),
		outputs: make(map[int]*gpiocdev.Line),
	}

	for pin := 0; pin < Pins; pin++ {
		bit := uint32(1) << pin
		switch {
		case inputMask&bit != 0:
			line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("request input pin %d: %w", pin, err)
			}
			d.inputs[pin] = line
		case outputMask&bit != 0:
			line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("request output pin %d: %w", pin, err)
			}
			d.outputs[pin] = line
		}
	}

	return d, nil
}

// Levels reads every requested line. Lines that fail to read report level 0;
// the sampler must never stall on a transient read failure.
func (d *CdevDevice) Levels() uint32 {
	var levels uint32
	for pin, line := range d.inputs {
		v, err := line.Value()
		if err == nil && v != 0 {
			levels |= 1 << pin
		}
	}
	for pin, line := range d.outputs {
		v, err := line.Value()
		if err == nil && v != 0 {
			levels |= 1 << pin
		}
	}
	return levels
}

func (d *CdevDevice) Apply(on, off uint32) error {
	for pin, line := range d.outputs {
		bit := uint32(1) << pin
		if on&bit != 0 {
			if err := line.SetValue(1); err != nil {
				return fmt.Errorf("set pin %d high: %w", pin, err)
			}
		} else if off&bit != 0 {
			if err := line.SetValue(0); err != nil {
				return fmt.Errorf("set pin %d low: %w", pin, err)
			}
		}
	}
	return nil
}

// Close reconfigures requested lines to input with pull-down (matching Pi
// boot defaults) before releasing them, so external hardware sees a clean
// state across restarts.
func (d *CdevDevice) Close() error {
	var errs []error
	for pin, line := range d.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pin %d: %w", pin, err))
		}
	}
	for pin, line := range d.outputs {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
