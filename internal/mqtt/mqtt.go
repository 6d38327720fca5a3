// Package mqtt publishes dial events, engine lifecycle events and encoded
// notification reports to an MQTT broker, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alicemirror/PiRotary/internal/notify"
	"github.com/alicemirror/PiRotary/internal/rotary"
)

// Topics.
const (
	// TopicDial carries decoded rotary dial events.
	TopicDial = "pirotary/dial"
	// TopicSystem carries lifecycle events (STARTUP, SHUTDOWN, HEARTBEAT).
	TopicSystem = "pirotary/system"
	// TopicReports is the prefix for per-handle notification reports; the
	// handle id is appended as the final topic level. The payload is the
	// raw 12-byte report wire form.
	TopicReports = "pirotary/notify"
)

// Publisher publishes engine output to MQTT.
type Publisher interface {
	// PublishDial sends a rotary dial event.
	PublishDial(event rotary.Event) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// PublishReport sends one notification report for the given handle.
	PublishReport(handle int, report notify.Report) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // signal name for shutdowns
	RawPayload []byte // pre-formatted JSON; overrides the default shape
	Retained   bool
}

// DialPayload is the JSON shape of a dial event.
type DialPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Digit     *int   `json:"digit,omitempty"`
	Number    string `json:"number,omitempty"`
	Tick      uint32 `json:"tick"`
}

// FormatDialPayload creates the JSON payload for a dial event.
func FormatDialPayload(event rotary.Event, now time.Time) ([]byte, error) {
	p := DialPayload{
		Timestamp: now.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Number:    event.Number,
		Tick:      event.Tick,
	}
	if event.Type == rotary.EventDigit {
		digit := event.Digit
		p.Digit = &digit
	}
	return json.Marshal(p)
}

// SystemPayload is the default JSON shape of a lifecycle event.
type SystemPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a lifecycle event,
// honoring a pre-formatted RawPayload.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	})
}

// ReportTopic returns the per-handle report topic.
func ReportTopic(handle int) string {
	return fmt.Sprintf("%s/%d", TopicReports, handle)
}
