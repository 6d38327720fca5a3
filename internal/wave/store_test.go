package wave

import (
	"testing"

	"github.com/alicemirror/PiRotary/internal/errcode"
)

func addPulses(t *testing.T, b *Builder, pulses ...Pulse) {
	t.Helper()
	if _, err := b.AddPulses(pulses); err != nil {
		t.Fatalf("AddPulses: %v", err)
	}
}

func createWave(t *testing.T, s *Store, b *Builder, pulses ...Pulse) int {
	t.Helper()
	addPulses(t, b, pulses...)
	id, err := s.Create(b)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func TestCreateEmptyWaveform(t *testing.T) {
	s := NewStore()
	_, err := s.Create(NewBuilder())
	if err != errcode.EmptyWaveform {
		t.Fatalf("got %v, want EmptyWaveform", err)
	}
}

func TestCreateConsumesBuilder(t *testing.T) {
	s := NewStore()
	b := NewBuilder()

	id := createWave(t, s, b, Pulse{On: 1, Delay: 100}, Pulse{Off: 1, Delay: 100})
	if id != 0 {
		t.Errorf("first wave id = %d, want 0", id)
	}
	if b.Pending() != 0 {
		t.Errorf("builder not consumed, pending = %d", b.Pending())
	}

	w, ok := s.Find(id)
	if !ok {
		t.Fatal("created wave not found")
	}
	if w.Pulses != 2 || w.Micros != 200 {
		t.Errorf("unexpected wave: pulses=%d micros=%d", w.Pulses, w.Micros)
	}
	if len(w.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(w.Blocks))
	}
	if w.Blocks[0].On != 1 || w.Blocks[0].Delay != 100 {
		t.Errorf("block 0: %+v", w.Blocks[0])
	}
	if w.Blocks[1].Off != 1 || w.Blocks[1].Delay != 100 {
		t.Errorf("block 1: %+v", w.Blocks[1])
	}
}

func TestCreateSequentialIDs(t *testing.T) {
	s := NewStore()
	b := NewBuilder()
	for want := 0; want < 3; want++ {
		if id := createWave(t, s, b, Pulse{On: 1, Delay: 10}); id != want {
			t.Errorf("got id %d, want %d", id, want)
		}
	}
	if s.Live() != 3 {
		t.Errorf("Live() = %d, want 3", s.Live())
	}
}

func TestCompileChunksLongDelays(t *testing.T) {
	s := NewStore()
	b := NewBuilder()

	// A 2.5s gap must split into one block at the ceiling plus fillers.
	id := createWave(t, s, b,
		Pulse{On: 1, Delay: 2500000},
		Pulse{Off: 1, Delay: 10},
	)
	w, _ := s.Find(id)
	if len(w.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(w.Blocks))
	}
	if w.Blocks[0].On != 1 || w.Blocks[0].Delay != MaxBlockMicros {
		t.Errorf("block 0: %+v", w.Blocks[0])
	}
	if w.Blocks[1].On|w.Blocks[1].Off != 0 || w.Blocks[1].Delay != MaxBlockMicros {
		t.Errorf("filler block 1: %+v", w.Blocks[1])
	}
	if w.Blocks[2].On|w.Blocks[2].Off != 0 || w.Blocks[2].Delay != 500000 {
		t.Errorf("filler block 2: %+v", w.Blocks[2])
	}
	if w.Blocks[3].Off != 1 || w.Blocks[3].Delay != 10 {
		t.Errorf("block 3: %+v", w.Blocks[3])
	}
}

func TestDeleteUnknownID(t *testing.T) {
	s := NewStore()
	if err := s.Delete(0); err != errcode.BadWaveID {
		t.Fatalf("got %v, want BadWaveID", err)
	}
}

func TestDeleteRemovesLaterWaves(t *testing.T) {
	s := NewStore()
	b := NewBuilder()
	for i := 0; i < 4; i++ {
		createWave(t, s, b, Pulse{On: 1, Delay: 10})
	}

	if err := s.Delete(2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Live() != 2 {
		t.Errorf("Live() = %d, want 2", s.Live())
	}
	if _, ok := s.Find(2); ok {
		t.Error("wave 2 should be gone")
	}
	if _, ok := s.Find(3); ok {
		t.Error("wave 3 should be gone")
	}
	if _, ok := s.Find(1); !ok {
		t.Error("wave 1 should survive")
	}

	// Freed ids are allocated again, in order.
	if id := createWave(t, s, b, Pulse{On: 1, Delay: 10}); id != 2 {
		t.Errorf("got id %d after delete, want 2", id)
	}

	// A deleted id is no longer deletable.
	if err := s.Delete(3); err != errcode.BadWaveID {
		t.Errorf("got %v, want BadWaveID", err)
	}
}

func TestClearResetsIDs(t *testing.T) {
	s := NewStore()
	b := NewBuilder()
	createWave(t, s, b, Pulse{On: 1, Delay: 10})
	createWave(t, s, b, Pulse{On: 1, Delay: 10})

	s.Clear()
	if s.Live() != 0 {
		t.Errorf("Live() = %d after Clear, want 0", s.Live())
	}
	if id := createWave(t, s, b, Pulse{On: 1, Delay: 10}); id != 0 {
		t.Errorf("got id %d after Clear, want 0", id)
	}
}

func TestStatsTrackCurrentAndHigh(t *testing.T) {
	s := NewStore()
	b := NewBuilder()

	createWave(t, s, b, Pulse{On: 1, Delay: 100}, Pulse{Off: 1, Delay: 100})
	createWave(t, s, b, Pulse{On: 1, Delay: 10})

	st := s.Stats()
	if st.Pulses != 1 || st.Micros != 10 || st.Blocks != 1 {
		t.Errorf("current stats describe the latest wave: %+v", st)
	}
	if st.HighPulses != 2 || st.HighMicros != 200 || st.HighBlocks != 2 {
		t.Errorf("high stats keep the maxima: %+v", st)
	}

	// Maxima survive Clear, current values reset.
	s.Clear()
	st = s.Stats()
	if st.Pulses != 0 || st.Micros != 0 || st.Blocks != 0 {
		t.Errorf("current stats should reset: %+v", st)
	}
	if st.HighPulses != 2 || st.HighMicros != 200 {
		t.Errorf("high stats should survive Clear: %+v", st)
	}
}

func TestCreateWaveLimit(t *testing.T) {
	s := NewStore()
	b := NewBuilder()
	for i := 0; i < MaxWaves; i++ {
		createWave(t, s, b, Pulse{On: 1, Delay: 1})
	}

	addPulses(t, b, Pulse{On: 1, Delay: 1})
	_, err := s.Create(b)
	if err != errcode.NoWaveformID {
		t.Fatalf("got %v, want NoWaveformID", err)
	}
	// Failure must not consume the pending waveform.
	if b.Pending() != 1 {
		t.Errorf("failed create consumed the builder, pending = %d", b.Pending())
	}
}

func TestCreateBlockPoolLimit(t *testing.T) {
	s := NewStore()
	b := NewBuilder()

	// Each 30-minute wave compiles to 1800 filler-padded blocks, so the
	// shared pool of 24000 blocks holds 13 of them.
	for i := 0; i < 13; i++ {
		createWave(t, s, b, Pulse{On: 1, Delay: MaxMicros / 2}, Pulse{Off: 1, Delay: MaxMicros / 2})
	}

	addPulses(t, b, Pulse{On: 1, Delay: MaxMicros / 2}, Pulse{Off: 1, Delay: MaxMicros / 2})
	_, err := s.Create(b)
	if err != errcode.TooManyBlocks {
		t.Fatalf("got %v, want TooManyBlocks", err)
	}
	if b.Pending() != 2 {
		t.Errorf("failed create consumed the builder, pending = %d", b.Pending())
	}

	// Deleting frees pool space for the pending waveform.
	if err := s.Delete(12); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(b); err != nil {
		t.Errorf("create after delete failed: %v", err)
	}
}
