//go:build !linux

package gpio

import "errors"

// Real devices are not available on non-Linux platforms.

type CdevDevice struct{}

func NewCdevDevice(inputMask, outputMask uint32) (*CdevDevice, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

func (d *CdevDevice) Levels() uint32             { return 0 }
func (d *CdevDevice) Apply(on, off uint32) error { return errors.New("gpio: not supported") }
func (d *CdevDevice) Close() error               { return nil }

type RegisterDevice struct{}

func NewRegisterDevice(inputMask, outputMask uint32) (*RegisterDevice, error) {
	return nil, errors.New("gpio: register access not supported on this platform (requires Linux)")
}

func (d *RegisterDevice) Levels() uint32             { return 0 }
func (d *RegisterDevice) Apply(on, off uint32) error { return errors.New("gpio: not supported") }
func (d *RegisterDevice) Close() error               { return nil }
