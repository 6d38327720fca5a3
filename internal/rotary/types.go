// Package rotary contains pure logic for decoding a rotary telephone dial
// from pin-level edges. This package has NO hardware dependencies; edges are
// fed in by the caller (normally from engine alert callbacks) and decoded
// digits come back as events.
package rotary

// Role identifies which dial pin an edge came from.
type Role int

const (
	// RoleHook is the hangup switch: high while the handset is lifted.
	RoleHook Role = iota
	// RoleGate is the dial-detect contact: high while the dial is away
	// from rest, i.e. for the whole return travel of one digit.
	RoleGate
	// RoleCounter is the pulse contact: one pulse per digit position
	// passed during the dial's return.
	RoleCounter
)

// Edge is one level change on a dial pin.
type Edge struct {
	Role  Role
	Level int // 0 or 1
	Tick  uint32
}

// EventType classifies decoder output.
type EventType string

const (
	// EventOffHook and EventOnHook report handset state.
	EventOffHook EventType = "OFF_HOOK"
	EventOnHook  EventType = "ON_HOOK"
	// EventDigit reports one decoded digit.
	EventDigit EventType = "DIGIT"
	// EventNumber reports a complete dialled number.
	EventNumber EventType = "NUMBER"
)

// Event is a decoded dial event.
type Event struct {
	Type   EventType
	Digit  int    // set for EventDigit
	Number string // set for EventNumber
	Tick   uint32
}
