// Package notify fans pin-level changes out to a bounded pool of subscriber
// handles. Each handle watches a pin bitmask and receives fixed-shape reports
// in tick order; delivery is non-blocking so a slow subscriber can never
// stall the sampling pipeline.
package notify

import (
	"encoding/binary"
	"sync"

	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/sampler"
)

// Slots is the handle pool capacity.
const Slots = 32

// FlagWatchdog marks a report produced by a watchdog timeout rather than a
// level change. The low five flag bits then carry the pin that timed out.
const FlagWatchdog = 1 << 5

// ReportBytes is the encoded size of one report.
const ReportBytes = 12

// Report is the fixed-shape notification record.
type Report struct {
	Seqno uint16
	Flags uint16
	Tick  uint32
	Level uint32
}

// Encode writes the 12-byte wire form: seqno, flags, tick, level,
// little-endian, in that order.
func (r Report) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], r.Seqno)
	binary.LittleEndian.PutUint16(buf[2:4], r.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], r.Tick)
	binary.LittleEndian.PutUint32(buf[8:12], r.Level)
}

// DecodeReport reads the wire form back into a Report.
func DecodeReport(buf []byte) Report {
	return Report{
		Seqno: binary.LittleEndian.Uint16(buf[0:2]),
		Flags: binary.LittleEndian.Uint16(buf[2:4]),
		Tick:  binary.LittleEndian.Uint32(buf[4:8]),
		Level: binary.LittleEndian.Uint32(buf[8:12]),
	}
}

type handle struct {
	open      bool
	paused    bool
	mask      uint32
	lastLevel uint32
	seqno     uint16
	ch        chan Report
	drops     uint64
}

// Mux owns the handle pool. The engine's dispatch cycle feeds it samples;
// subscribers drain their reports from per-handle buffered channels.
type Mux struct {
	mu      sync.Mutex
	slots   [Slots]handle
	chanCap int
	levels  uint32 // newest processed level mask, baseline for Begin
}

// NewMux creates a pool whose handles buffer up to chanCap undelivered
// reports each. Reports beyond that are dropped and counted.
func NewMux(chanCap int) *Mux {
	if chanCap <= 0 {
		chanCap = 64
	}
	return &Mux{chanCap: chanCap}
}

// Open allocates a handle. The handle starts paused with sequence number 0;
// reporting begins with Begin.
func (m *Mux) Open() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.slots {
		if !m.slots[id].open {
			m.slots[id] = handle{
				open:   true,
				paused: true,
				ch:     make(chan Report, m.chanCap),
			}
			return id, nil
		}
	}
	return 0, errcode.NoHandle
}

// Begin activates reporting for the pins set in mask, baselined against the
// newest processed levels.
func (m *Mux) Begin(id int, mask uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.slot(id)
	if err != nil {
		return err
	}
	h.mask = mask
	h.lastLevel = m.levels
	h.paused = false
	return nil
}

// Pause suspends reporting until the next Begin. The sequence number is kept.
func (m *Mux) Pause(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.slot(id)
	if err != nil {
		return err
	}
	h.paused = true
	return nil
}

// Close releases the handle and its pool slot. Undelivered reports are
// discarded with the channel.
func (m *Mux) Close(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.slot(id)
	if err != nil {
		return err
	}
	close(h.ch)
	*h = handle{}
	return nil
}

// Reports returns the handle's delivery channel.
func (m *Mux) Reports(id int) (<-chan Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.slot(id)
	if err != nil {
		return nil, err
	}
	return h.ch, nil
}

// Drops returns how many reports the handle has lost to a full channel.
func (m *Mux) Drops(id int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.slot(id)
	if err != nil {
		return 0, err
	}
	return h.drops, nil
}

// OpenHandles returns the number of allocated handles.
func (m *Mux) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.slots {
		if m.slots[id].open {
			n++
		}
	}
	return n
}

func (m *Mux) slot(id int) (*handle, error) {
	if id < 0 || id >= Slots || !m.slots[id].open {
		return nil, errcode.BadHandle
	}
	return &m.slots[id], nil
}

// Process examines one sample and emits a report to every active handle
// whose watched bits changed since its last report.
func (m *Mux) Process(s sampler.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levels = s.Levels
	for id := range m.slots {
		h := &m.slots[id]
		if !h.open || h.paused {
			continue
		}
		if (s.Levels^h.lastLevel)&h.mask == 0 {
			continue
		}
		h.lastLevel = s.Levels
		m.emit(h, Report{Seqno: h.seqno, Tick: s.Tick, Level: s.Levels})
	}
}

// Watchdog emits a timeout report for pin to every active handle watching it.
func (m *Mux) Watchdog(pin int, tick, levels uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	flags := uint16(FlagWatchdog | (pin & 31))
	for id := range m.slots {
		h := &m.slots[id]
		if !h.open || h.paused || h.mask&(1<<pin) == 0 {
			continue
		}
		m.emit(h, Report{Seqno: h.seqno, Flags: flags, Tick: tick, Level: levels})
	}
}

func (m *Mux) emit(h *handle, r Report) {
	h.seqno++ // wraps silently at 2^16
	select {
	case h.ch <- r:
	default:
		h.drops++
	}
}
