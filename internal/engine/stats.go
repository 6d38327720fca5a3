package engine

import "github.com/alicemirror/PiRotary/internal/wave"

// Snapshot is a point-in-time view of the engine for the status surfaces.
type Snapshot struct {
	Initialised bool   `json:"initialised"`
	Tick        uint32 `json:"tick"`
	Levels      uint32 `json:"levels"`

	TickMicros   int `json:"tick_micros"`
	BufferMillis int `json:"buffer_millis"`

	Samples      uint64 `json:"samples"`       // samples produced since Initialise
	LostSamples  uint64 `json:"lost_samples"`  // overwritten before dispatch read them
	OpenHandles  int    `json:"open_handles"`  // allocated notification handles
	LiveWaves    int    `json:"live_waves"`    // compiled, undeleted waveforms
	Transmitting bool   `json:"transmitting"`  // waveform playback active
	PendingPulse int    `json:"pending_pulse"` // pulses awaiting WaveCreate

	Wave wave.Stats `json:"wave"`
}

// Stats returns the current snapshot. On an uninitialised engine only the
// configuration fields are meaningful.
func (e *Engine) Stats() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Initialised:  e.initialised,
		TickMicros:   e.cfg.TickMicros,
		BufferMillis: e.cfg.BufferMillis,
	}
	if !e.initialised {
		return snap
	}

	snap.Tick = e.clk.Tick()
	snap.Levels = e.dev.Levels()
	snap.Samples = e.ring.Head()
	snap.LostSamples = e.lost.Load()
	snap.OpenHandles = e.mux.OpenHandles()
	snap.LiveWaves = e.store.Live()
	snap.Transmitting = e.tx.Busy()
	snap.PendingPulse = e.builder.Pending()
	snap.Wave = e.store.Stats()
	return snap
}
