package wave

import (
	"sync"

	"github.com/alicemirror/PiRotary/internal/errcode"
)

// Stats reports waveform resource usage. Current values describe the most
// recently compiled waveform; High values are the historical maxima, which
// persist across deletions until the engine is torn down.
type Stats struct {
	Micros     uint64
	HighMicros uint64
	Pulses     int
	HighPulses int
	Blocks     int
	HighBlocks int
}

// Store owns the compiled waveforms: a fixed-capacity arena of block chains
// indexed by monotonically increasing ids. Ids are allocated in order 0, 1,
// 2, ...; deleting id X removes every waveform with id >= X and makes X the
// next id to be allocated.
type Store struct {
	mu         sync.Mutex
	waves      []*Waveform // ascending by ID
	nextID     int
	blocksUsed int
	stats      Stats
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Create compiles the builder's pending waveform into a block chain and
// commits it under a new id. The pending waveform is consumed only on
// success; every failure leaves both builder and store untouched.
func (s *Store) Create(b *Builder) (int, error) {
	events, end := b.snapshot()
	if len(events) == 0 {
		return 0, errcode.EmptyWaveform
	}

	blocks := compile(events, end)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waves) >= MaxWaves {
		return 0, errcode.NoWaveformID
	}
	if s.blocksUsed+len(blocks) > MaxBlocks {
		return 0, errcode.TooManyBlocks
	}

	w := &Waveform{
		ID:     s.nextID,
		Blocks: blocks,
		Micros: end,
		Pulses: len(events),
	}
	s.waves = append(s.waves, w)
	s.nextID++
	s.blocksUsed += len(blocks)

	s.stats.Micros = w.Micros
	s.stats.Pulses = w.Pulses
	s.stats.Blocks = len(blocks)
	if w.Micros > s.stats.HighMicros {
		s.stats.HighMicros = w.Micros
	}
	if w.Pulses > s.stats.HighPulses {
		s.stats.HighPulses = w.Pulses
	}
	if len(blocks) > s.stats.HighBlocks {
		s.stats.HighBlocks = len(blocks)
	}

	b.reset()
	return w.ID, nil
}

// compile turns the time-sorted event list into the block chain. The gap
// after each event becomes that event's block delay; gaps longer than
// MaxBlockMicros are chunked into mask-free filler blocks with the remainder
// carried by the final chunk.
func compile(events []event, end uint64) []Block {
	blocks := make([]Block, 0, len(events))
	for i, ev := range events {
		var gap uint64
		if i+1 < len(events) {
			gap = events[i+1].start - ev.start
		} else {
			gap = end - ev.start
		}

		first := Block{On: ev.on, Off: ev.off}
		if gap > MaxBlockMicros {
			first.Delay = MaxBlockMicros
			gap -= MaxBlockMicros
		} else {
			first.Delay = uint32(gap)
			gap = 0
		}
		blocks = append(blocks, first)

		for gap > 0 {
			chunk := gap
			if chunk > MaxBlockMicros {
				chunk = MaxBlockMicros
			}
			blocks = append(blocks, Block{Delay: uint32(chunk)})
			gap -= chunk
		}
	}
	return blocks
}

// Find returns the waveform with the given id.
func (s *Store) Find(id int) (*Waveform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.waves {
		if w.ID == id {
			return w, true
		}
	}
	return nil, false
}

// Delete removes every waveform with id >= the given id. The id must name a
// live waveform. Freed ids become allocatable again.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, w := range s.waves {
		if w.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errcode.BadWaveID
	}

	for _, w := range s.waves[idx:] {
		s.blocksUsed -= len(w.Blocks)
	}
	s.waves = s.waves[:idx]
	s.nextID = id
	return nil
}

// Clear removes every waveform and resets id allocation. Historical maxima
// survive; current stats drop to zero with the waveforms they described.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waves = nil
	s.nextID = 0
	s.blocksUsed = 0
	s.stats.Micros = 0
	s.stats.Pulses = 0
	s.stats.Blocks = 0
}

// Stats returns a snapshot of the resource counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Live returns the number of compiled waveforms currently held.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waves)
}
