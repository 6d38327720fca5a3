// Package gpio provides whole-bank pin access with hardware abstraction.
// The engine reads all pin levels as one 32-bit mask and drives outputs with
// on/off mask pairs. Two real backends exist: the Linux GPIO character device
// and memory-mapped register access. The fake allows testing without hardware.
package gpio

// Pins is the number of user pins the engine manages (bank 0).
const Pins = 32

// Device is the physical pin bank.
type Device interface {
	// Levels returns the current level of every pin as a bitmask,
	// bit n holding the level of pin n.
	Levels() uint32

	// Apply drives the pins in on high and the pins in off low.
	// Pins in neither mask are left untouched.
	Apply(on, off uint32) error

	// Close releases the underlying hardware.
	Close() error
}
