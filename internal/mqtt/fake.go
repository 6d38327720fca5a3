package mqtt

import (
	"sync"

	"github.com/alicemirror/PiRotary/internal/notify"
	"github.com/alicemirror/PiRotary/internal/rotary"
)

// FakePublisher records published events for test inspection.
type FakePublisher struct {
	mu sync.Mutex

	DialEvents   []rotary.Event
	SystemEvents []SystemEvent
	Reports      map[int][]notify.Report

	// PublishError, if set, is returned by every publish method.
	PublishError error

	Closed    bool
	Connected bool
}

// NewFakePublisher creates a connected fake.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{
		Reports:   make(map[int][]notify.Report),
		Connected: true,
	}
}

func (f *FakePublisher) PublishDial(event rotary.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.DialEvents = append(f.DialEvents, event)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

func (f *FakePublisher) PublishReport(handle int, report notify.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Reports[handle] = append(f.Reports[handle], report)
	return nil
}

// DialLog returns a copy of the published dial events, safe to call while
// another goroutine is still publishing.
func (f *FakePublisher) DialLog() []rotary.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rotary.Event(nil), f.DialEvents...)
}

// SystemLog returns a copy of the published system events.
func (f *FakePublisher) SystemLog() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
