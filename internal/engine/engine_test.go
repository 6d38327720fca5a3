package engine

import (
	"testing"
	"time"

	"github.com/alicemirror/PiRotary/internal/alert"
	"github.com/alicemirror/PiRotary/internal/bitbang"
	"github.com/alicemirror/PiRotary/internal/clock"
	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/gpio"
	"github.com/alicemirror/PiRotary/internal/notify"
	"github.com/alicemirror/PiRotary/internal/sampler"
	"github.com/alicemirror/PiRotary/internal/wave"
)

// newRunning returns an initialised engine over a fake device, torn down with
// the test. The wall clock drives the real sampling and dispatch goroutines.
func newRunning(t *testing.T, cfg Config) (*Engine, *gpio.Fake) {
	t.Helper()
	dev := gpio.NewFake()
	e := New(dev, clock.NewWall())
	if err := e.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := e.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	t.Cleanup(e.Close)
	return e, dev
}

func lightConfig() Config {
	cfg := DefaultConfig()
	cfg.TickMicros = 10
	cfg.BufferMillis = 100
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   errcode.Errno
	}{
		{"bad tick", func(c *Config) { c.TickMicros = 3 }, errcode.BadClockMicros},
		{"buffer too small", func(c *Config) { c.BufferMillis = 99 }, errcode.BadBufMillis},
		{"buffer too large", func(c *Config) { c.BufferMillis = 10001 }, errcode.BadBufMillis},
		{"bad primary channel", func(c *Config) { c.PrimaryChannel = 15 }, errcode.BadPrimaryChannel},
		{"bad secondary channel", func(c *Config) { c.SecondaryChannel = 7 }, errcode.BadSecondaryChannel},
		{"bad dispatch interval", func(c *Config) { c.DispatchMicros = 0 }, errcode.BadClockMicros},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err != tt.want {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestOpsBeforeInitialise(t *testing.T) {
	e := New(gpio.NewFake(), clock.NewFake(0))

	if _, err := e.Levels(); err != errcode.NotInitialised {
		t.Errorf("Levels: got %v, want NotInitialised", err)
	}
	if err := e.Write(4, 1); err != errcode.NotInitialised {
		t.Errorf("Write: got %v, want NotInitialised", err)
	}
	if _, err := e.WaveCreate(); err != errcode.NotInitialised {
		t.Errorf("WaveCreate: got %v, want NotInitialised", err)
	}
	if _, err := e.NotifyOpen(); err != errcode.NotInitialised {
		t.Errorf("NotifyOpen: got %v, want NotInitialised", err)
	}
	if err := e.SerialOpen(4, 9600); err != errcode.NotInitialised {
		t.Errorf("SerialOpen: got %v, want NotInitialised", err)
	}
}

func TestConfigureAfterInitialise(t *testing.T) {
	e, _ := newRunning(t, lightConfig())
	if err := e.Configure(DefaultConfig()); err != errcode.Initialised {
		t.Errorf("got %v, want Initialised", err)
	}
	if err := e.Initialise(); err != errcode.Initialised {
		t.Errorf("second Initialise: got %v, want Initialised", err)
	}
}

func TestConfigureRejectsInvalid(t *testing.T) {
	e := New(gpio.NewFake(), clock.NewFake(0))
	cfg := DefaultConfig()
	cfg.TickMicros = 7
	if err := e.Configure(cfg); err != errcode.BadClockMicros {
		t.Errorf("got %v, want BadClockMicros", err)
	}
}

func TestReadWrite(t *testing.T) {
	e, dev := newRunning(t, lightConfig())

	if err := e.Write(4, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	level, err := e.Read(4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if level != 1 {
		t.Errorf("Read(4) = %d, want 1", level)
	}

	if err := e.Write(4, 0); err != nil {
		t.Fatal(err)
	}
	if level, _ := e.Read(4); level != 0 {
		t.Errorf("Read(4) = %d after clear, want 0", level)
	}

	// External pin changes are visible too.
	dev.SetPin(9, true)
	if level, _ := e.Read(9); level != 1 {
		t.Errorf("Read(9) = %d, want 1", level)
	}
}

func TestWriteValidation(t *testing.T) {
	e, _ := newRunning(t, lightConfig())
	if err := e.Write(-1, 1); err != errcode.BadPin {
		t.Errorf("got %v, want BadPin", err)
	}
	if err := e.Write(32, 1); err != errcode.BadPin {
		t.Errorf("got %v, want BadPin", err)
	}
	if err := e.Write(4, 2); err != errcode.BadLevel {
		t.Errorf("got %v, want BadLevel", err)
	}
	if _, err := e.Read(32); err != errcode.BadPin {
		t.Errorf("Read: got %v, want BadPin", err)
	}
}

func TestWritePermissions(t *testing.T) {
	cfg := lightConfig()
	cfg.Permitted = 1 << 4
	e, _ := newRunning(t, cfg)

	if err := e.Write(4, 1); err != nil {
		t.Errorf("permitted pin refused: %v", err)
	}
	if err := e.Write(5, 1); err != errcode.NotPermitted {
		t.Errorf("got %v, want NotPermitted", err)
	}
	if err := e.Trigger(5, 10, 1); err != errcode.NotPermitted {
		t.Errorf("Trigger: got %v, want NotPermitted", err)
	}
	if _, err := e.WaveAddPulses([]wave.Pulse{{On: 1 << 5, Delay: 10}}); err != errcode.NotPermitted {
		t.Errorf("WaveAddPulses: got %v, want NotPermitted", err)
	}
	if _, err := e.WaveAddSerial(5, 9600, 0, []byte{1}); err != errcode.NotPermitted {
		t.Errorf("WaveAddSerial: got %v, want NotPermitted", err)
	}
}

func TestTrigger(t *testing.T) {
	e, dev := newRunning(t, lightConfig())

	before := len(dev.WriteLog())
	if err := e.Trigger(6, 10, 1); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	log := dev.WriteLog()[before:]
	if len(log) != 2 {
		t.Fatalf("got %d writes, want pulse and restore", len(log))
	}
	if log[0].On != 1<<6 || log[1].Off != 1<<6 {
		t.Errorf("unexpected pulse writes: %+v", log)
	}
	// The pin ends at the opposite of the pulse level.
	if level, _ := e.Read(6); level != 0 {
		t.Errorf("pin left at %d after high pulse", level)
	}

	if err := e.Trigger(6, 0, 1); err != errcode.BadPulseLen {
		t.Errorf("got %v, want BadPulseLen", err)
	}
	if err := e.Trigger(6, 51, 1); err != errcode.BadPulseLen {
		t.Errorf("got %v, want BadPulseLen", err)
	}
}

func TestWaveLifecycle(t *testing.T) {
	e, _ := newRunning(t, lightConfig())

	n, err := e.WaveAddPulses([]wave.Pulse{{On: 1 << 2, Delay: 100}, {Off: 1 << 2, Delay: 100}})
	if err != nil {
		t.Fatalf("WaveAddPulses: %v", err)
	}
	if n != 2 {
		t.Errorf("pending = %d, want 2", n)
	}

	id, err := e.WaveCreate()
	if err != nil {
		t.Fatalf("WaveCreate: %v", err)
	}
	if id != 0 {
		t.Errorf("first wave id = %d, want 0", id)
	}

	blocks, err := e.WaveSend(id, wave.ModeOneShot)
	if err != nil {
		t.Fatalf("WaveSend: %v", err)
	}
	if blocks != 2 {
		t.Errorf("WaveSend returned %d blocks, want 2", blocks)
	}

	waitWaveIdle(t, e)

	st, err := e.WaveStats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Pulses != 2 || st.Micros != 200 {
		t.Errorf("unexpected stats: %+v", st)
	}

	if err := e.WaveClear(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.WaveSend(id, wave.ModeOneShot); err != errcode.BadWaveID {
		t.Errorf("send after clear: got %v, want BadWaveID", err)
	}
}

func TestWaveSendUnknownID(t *testing.T) {
	e, _ := newRunning(t, lightConfig())
	if _, err := e.WaveSend(3, wave.ModeOneShot); err != errcode.BadWaveID {
		t.Errorf("got %v, want BadWaveID", err)
	}
	if _, err := e.WaveSend(0, wave.Mode(9)); err != errcode.BadWaveMode {
		t.Errorf("got %v, want BadWaveMode", err)
	}
}

func TestWaveDeleteStopsPlayback(t *testing.T) {
	e, _ := newRunning(t, lightConfig())

	if _, err := e.WaveAddPulses([]wave.Pulse{{On: 1, Delay: 5000}, {Off: 1, Delay: 5000}}); err != nil {
		t.Fatal(err)
	}
	id, err := e.WaveCreate()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.WaveSend(id, wave.ModeRepeat); err != nil {
		t.Fatal(err)
	}
	if busy, _ := e.WaveBusy(); !busy {
		t.Fatal("expected transmission in progress")
	}

	if err := e.WaveDelete(id); err != nil {
		t.Fatalf("WaveDelete: %v", err)
	}
	if busy, _ := e.WaveBusy(); busy {
		t.Error("deleting the playing wave must stop transmission")
	}
	if err := e.WaveDelete(id); err != errcode.BadWaveID {
		t.Errorf("second delete: got %v, want BadWaveID", err)
	}
}

func TestNotifyDeliversSamples(t *testing.T) {
	e, dev := newRunning(t, lightConfig())

	h, err := e.NotifyOpen()
	if err != nil {
		t.Fatalf("NotifyOpen: %v", err)
	}
	if err := e.NotifyBegin(h, 1<<3); err != nil {
		t.Fatalf("NotifyBegin: %v", err)
	}
	reports, err := e.NotifyReports(h)
	if err != nil {
		t.Fatal(err)
	}

	dev.SetPin(3, true)

	select {
	case r := <-reports:
		if r.Level&(1<<3) == 0 {
			t.Errorf("report does not show pin 3 high: %+v", r)
		}
		if r.Seqno != 0 {
			t.Errorf("first report seqno = %d, want 0", r.Seqno)
		}
	case <-time.After(time.Second):
		t.Fatal("no report for the pin change")
	}

	if err := e.NotifyClose(h); err != nil {
		t.Fatal(err)
	}
	if err := e.NotifyBegin(h, 1); err != errcode.BadHandle {
		t.Errorf("Begin after Close: got %v, want BadHandle", err)
	}
}

func TestAlertFiresOnEdge(t *testing.T) {
	e, dev := newRunning(t, lightConfig())

	fired := make(chan int, 8)
	if err := e.SetAlert(5, func(pin, level int, tick uint32) {
		fired <- level
	}); err != nil {
		t.Fatalf("SetAlert: %v", err)
	}

	// Give the dispatcher a cycle to baseline before the edge.
	time.Sleep(20 * time.Millisecond)
	dev.SetPin(5, true)

	select {
	case level := <-fired:
		if level != 1 {
			t.Errorf("alert level = %d, want 1", level)
		}
	case <-time.After(time.Second):
		t.Fatal("alert did not fire")
	}
}

func TestDispatchBaselinesOnRealSample(t *testing.T) {
	dev := gpio.NewFake()
	dev.SetPin(5, true)
	clk := clock.NewFake(0)

	// Assemble the dispatch pipeline by hand so the cycle order is under
	// test control: the first dispatch runs before any sample exists.
	e := New(dev, clk)
	e.ring = sampler.NewRing(64)
	e.smp = sampler.New(dev, clk, e.ring, 10)
	e.mux = notify.NewMux(4)
	e.alerts = alert.NewDispatcher()
	e.serial = bitbang.NewDecoder()
	e.cursor = e.ring.Head()

	var fired []int
	if err := e.alerts.Set(5, func(pin, level int, tick uint32) {
		fired = append(fired, level)
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	e.dispatchOnce()
	next := e.smp.Step(clk.Tick()) // pin 5 has been high since before start
	e.dispatchOnce()
	if len(fired) != 0 {
		t.Fatalf("alert fired %v for a pin that never changed", fired)
	}

	dev.SetPin(5, false)
	e.smp.Step(next)
	e.dispatchOnce()
	if len(fired) != 1 || fired[0] != 0 {
		t.Errorf("falling edge: got %v, want [0]", fired)
	}
}

func TestWatchdogFiresWhenSilent(t *testing.T) {
	e, _ := newRunning(t, lightConfig())

	fired := make(chan int, 8)
	if err := e.SetAlert(8, func(pin, level int, tick uint32) {
		fired <- level
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.SetWatchdog(8, 20); err != nil {
		t.Fatalf("SetWatchdog: %v", err)
	}

	select {
	case level := <-fired:
		if level != 2 {
			t.Errorf("watchdog level = %d, want the timeout level", level)
		}
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
}

func TestSerialOps(t *testing.T) {
	e, _ := newRunning(t, lightConfig())

	if err := e.SerialOpen(7, 9600); err != nil {
		t.Fatalf("SerialOpen: %v", err)
	}
	if err := e.SerialOpen(7, 9600); err != errcode.PinInUse {
		t.Errorf("got %v, want PinInUse", err)
	}

	buf := make([]byte, 8)
	n, err := e.SerialRead(7, buf)
	if err != nil {
		t.Fatalf("SerialRead: %v", err)
	}
	if n != 0 {
		t.Errorf("read %d bytes from an idle line", n)
	}

	if err := e.SerialClose(7); err != nil {
		t.Fatalf("SerialClose: %v", err)
	}
	if _, err := e.SerialRead(7, buf); err != errcode.NotSerialPin {
		t.Errorf("read after close: got %v, want NotSerialPin", err)
	}
}

func TestStatsSnapshot(t *testing.T) {
	e, _ := newRunning(t, lightConfig())

	if _, err := e.WaveAddPulses([]wave.Pulse{{On: 1, Delay: 10}}); err != nil {
		t.Fatal(err)
	}
	h, err := e.NotifyOpen()
	if err != nil {
		t.Fatal(err)
	}
	defer e.NotifyClose(h)

	snap := e.Stats()
	if !snap.Initialised {
		t.Error("snapshot should show the engine initialised")
	}
	if snap.TickMicros != 10 || snap.BufferMillis != 100 {
		t.Errorf("config fields wrong: %+v", snap)
	}
	if snap.OpenHandles != 1 {
		t.Errorf("OpenHandles = %d, want 1", snap.OpenHandles)
	}
	if snap.PendingPulse != 1 {
		t.Errorf("PendingPulse = %d, want 1", snap.PendingPulse)
	}
}

func TestCloseAndReinitialise(t *testing.T) {
	dev := gpio.NewFake()
	e := New(dev, clock.NewWall())
	if err := e.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	e.Close()

	if _, err := e.Levels(); err != errcode.NotInitialised {
		t.Errorf("ops after Close: got %v, want NotInitialised", err)
	}

	cfg := lightConfig()
	if err := e.Configure(cfg); err != nil {
		t.Fatalf("Configure after Close: %v", err)
	}
	if err := e.Initialise(); err != nil {
		t.Fatalf("re-Initialise: %v", err)
	}
	defer e.Close()

	if _, err := e.Levels(); err != nil {
		t.Errorf("Levels after re-Initialise: %v", err)
	}

	// Closing twice is harmless.
	e.Close()
	e.Close()
}

func waitWaveIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		busy, err := e.WaveBusy()
		if err != nil {
			t.Fatal(err)
		}
		if !busy {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("transmission did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}
