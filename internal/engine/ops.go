package engine

import (
	"github.com/alicemirror/PiRotary/internal/alert"
	"github.com/alicemirror/PiRotary/internal/errcode"
	"github.com/alicemirror/PiRotary/internal/gpio"
	"github.com/alicemirror/PiRotary/internal/notify"
	"github.com/alicemirror/PiRotary/internal/wave"
)

// Levels returns the current pin-level bitmask.
func (e *Engine) Levels() (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.dev.Levels(), nil
}

// Read returns the level of one pin.
func (e *Engine) Read(pin int) (int, error) {
	if pin < 0 || pin >= gpio.Pins {
		return 0, errcode.BadPin
	}
	levels, err := e.Levels()
	if err != nil {
		return 0, err
	}
	return int((levels >> pin) & 1), nil
}

// Write drives one pin to the given level.
func (e *Engine) Write(pin, level int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if pin < 0 || pin >= gpio.Pins {
		return errcode.BadPin
	}
	if level != 0 && level != 1 {
		return errcode.BadLevel
	}
	mask := uint32(1) << pin
	if !e.permitted(mask) {
		return errcode.NotPermitted
	}
	if level == 1 {
		return e.applyDev(mask, 0)
	}
	return e.applyDev(0, mask)
}

// Trigger emits one pulse of pulseMicros (1-50) at the given level on the
// pin, then restores the opposite level. The pulse is timed inline on the
// caller; its brevity is what the length bound is for.
func (e *Engine) Trigger(pin, pulseMicros, level int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if pin < 0 || pin >= gpio.Pins {
		return errcode.BadPin
	}
	if level != 0 && level != 1 {
		return errcode.BadLevel
	}
	if pulseMicros < 1 || pulseMicros > 50 {
		return errcode.BadPulseLen
	}
	mask := uint32(1) << pin
	if !e.permitted(mask) {
		return errcode.NotPermitted
	}

	on, off := mask, uint32(0)
	if level == 0 {
		on, off = off, on
	}
	if err := e.applyDev(on, off); err != nil {
		return err
	}
	e.clk.SleepMicros(uint32(pulseMicros))
	return e.applyDev(off, on)
}

func (e *Engine) applyDev(on, off uint32) error {
	if err := e.dev.Apply(on, off); err != nil {
		return errcode.BadDevice
	}
	return nil
}

// --- Waveforms ---

// WaveClear stops any transmission and discards the pending waveform and
// every compiled waveform.
func (e *Engine) WaveClear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	e.tx.Stop()
	e.builder.Clear()
	e.store.Clear()
	return nil
}

// WaveAddPulses merges pulses into the pending waveform and returns the new
// pending total.
func (e *Engine) WaveAddPulses(pulses []wave.Pulse) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	var touched uint32
	for _, p := range pulses {
		touched |= p.On | p.Off
	}
	if !e.permitted(touched) {
		return 0, errcode.NotPermitted
	}
	return e.builder.AddPulses(pulses)
}

// WaveAddSerial merges a serial pulse train into the pending waveform and
// returns the new pending total.
func (e *Engine) WaveAddSerial(pin, baud int, offset uint32, data []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	if pin >= 0 && pin < gpio.Pins && !e.permitted(uint32(1)<<pin) {
		return 0, errcode.NotPermitted
	}
	return e.builder.AddSerial(pin, baud, offset, data)
}

// WaveCreate compiles the pending waveform and returns its id.
func (e *Engine) WaveCreate() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.store.Create(e.builder)
}

// WaveDelete removes every waveform with id >= the given id, halting
// transmission first if the current waveform is in the deleted range.
func (e *Engine) WaveDelete(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	if _, ok := e.store.Find(id); !ok {
		return errcode.BadWaveID
	}
	if cur, playing := e.tx.Current(); playing && cur >= id {
		e.tx.Stop()
	}
	return e.store.Delete(id)
}

// WaveSend transmits the waveform with the given id and returns its block
// count.
func (e *Engine) WaveSend(id int, mode wave.Mode) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	if !wave.ValidMode(mode) {
		return 0, errcode.BadWaveMode
	}
	w, ok := e.store.Find(id)
	if !ok {
		return 0, errcode.BadWaveID
	}
	return e.tx.Send(w, mode)
}

// WaveBusy reports whether a waveform is being transmitted.
func (e *Engine) WaveBusy() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.tx.Busy(), nil
}

// WaveStop aborts transmission at the next block boundary. It is intended
// for terminating repeat-mode playback.
func (e *Engine) WaveStop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	e.tx.Stop()
	return nil
}

// WaveStats returns the waveform resource counters.
func (e *Engine) WaveStats() (wave.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return wave.Stats{}, err
	}
	return e.store.Stats(), nil
}

// --- Notifications ---

// NotifyOpen allocates a notification handle.
func (e *Engine) NotifyOpen() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.mux.Open()
}

// NotifyBegin starts reporting for the pins set in mask.
func (e *Engine) NotifyBegin(handle int, mask uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.mux.Begin(handle, mask)
}

// NotifyPause suspends reporting until the next NotifyBegin.
func (e *Engine) NotifyPause(handle int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.mux.Pause(handle)
}

// NotifyClose releases the handle and its pool slot.
func (e *Engine) NotifyClose(handle int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.mux.Close(handle)
}

// NotifyReports returns the handle's report channel.
func (e *Engine) NotifyReports(handle int) (<-chan notify.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.mux.Reports(handle)
}

// --- Alerts and watchdogs ---

// SetAlert registers f as the pin's level-change callback; nil cancels.
func (e *Engine) SetAlert(pin int, f alert.Func) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.alerts.Set(pin, f)
}

// SetWatchdog arms (or with timeout 0 cancels) the pin's watchdog.
func (e *Engine) SetWatchdog(pin, timeoutMillis int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.alerts.SetWatchdog(pin, timeoutMillis, e.clk.Tick())
}

// --- Bit-bang serial ---

// SerialOpen starts bit-bang serial reading on the pin.
func (e *Engine) SerialOpen(pin, baud int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.serial.Open(pin, baud)
}

// SerialRead drains up to len(buf) decoded bytes from the pin's buffer.
func (e *Engine) SerialRead(pin int, buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.serial.Read(pin, buf)
}

// SerialClose ends the pin's session, discarding undelivered bytes.
func (e *Engine) SerialClose(pin int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ready(); err != nil {
		return err
	}
	return e.serial.Close(pin)
}
