// Command pirotary runs the rotary smart-phone daemon: it samples the dial
// and hook pins through the GPIO engine, decodes dialled numbers, drives the
// indicator LEDs, and publishes events to MQTT.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/alicemirror/PiRotary/internal/clock"
	"github.com/alicemirror/PiRotary/internal/engine"
	"github.com/alicemirror/PiRotary/internal/gpio"
	"github.com/alicemirror/PiRotary/internal/influx"
	"github.com/alicemirror/PiRotary/internal/monitor"
	"github.com/alicemirror/PiRotary/internal/mqtt"
	"github.com/alicemirror/PiRotary/internal/rotary"
)

// Default pin assignment (BCM numbering) for the rotary phone wiring.
const (
	defaultPinHook    = 23 // hangup/hangout switch
	defaultPinGate    = 27 // dial-detect contact
	defaultPinCounter = 18 // dial pulse contact
	defaultPinHookLED = 4  // lit while the handset is off hook
	defaultPinDialLED = 25 // lit while the dialer is accepting numbers
)

func main() {
	device := flag.String("device", "cdev", `pin backend: "cdev" (character device) or "rpio" (memory-mapped registers)`)
	tick := flag.Int("tick", 5, "sampling interval in microseconds (1, 2, 4, 5, 8, 10)")
	buffer := flag.Int("buffer", 120, "sample buffer duration in milliseconds (100-10000)")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", `MQTT broker address ("off" to disable)`)
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	influxHost := flag.String("influx-host", "", "InfluxDB server URL (empty to disable stats export)")
	influxToken := flag.String("influx-token", "", "InfluxDB API token")
	influxOrg := flag.String("influx-org", "home", "InfluxDB organization")
	influxBucket := flag.String("influx-bucket", "pirotary", "InfluxDB bucket")
	maxDigits := flag.Int("digits", rotary.DefaultMaxDigits, "dialled number length")
	pinHook := flag.Int("pin-hook", defaultPinHook, "BCM pin of the hangup switch")
	pinGate := flag.Int("pin-gate", defaultPinGate, "BCM pin of the dial-detect contact")
	pinCounter := flag.Int("pin-counter", defaultPinCounter, "BCM pin of the dial pulse contact")
	pinHookLED := flag.Int("pin-hook-led", defaultPinHookLED, "BCM pin of the off-hook LED")
	pinDialLED := flag.Int("pin-dial-led", defaultPinDialLED, "BCM pin of the dialer-ready LED")

	flag.Parse()

	if err := run(options{
		device:       *device,
		tick:         *tick,
		buffer:       *buffer,
		broker:       *broker,
		heartbeat:    *heartbeat,
		httpAddr:     *httpAddr,
		influxHost:   *influxHost,
		influxToken:  *influxToken,
		influxOrg:    *influxOrg,
		influxBucket: *influxBucket,
		maxDigits:    *maxDigits,
		pinHook:      *pinHook,
		pinGate:      *pinGate,
		pinCounter:   *pinCounter,
		pinHookLED:   *pinHookLED,
		pinDialLED:   *pinDialLED,
	}); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type options struct {
	device       string
	tick         int
	buffer       int
	broker       string
	heartbeat    time.Duration
	httpAddr     string
	influxHost   string
	influxToken  string
	influxOrg    string
	influxBucket string
	maxDigits    int
	pinHook      int
	pinGate      int
	pinCounter   int
	pinHookLED   int
	pinDialLED   int
}

func run(opts options) error {
	inputMask := uint32(1)<<opts.pinHook | uint32(1)<<opts.pinGate | uint32(1)<<opts.pinCounter
	outputMask := uint32(1)<<opts.pinHookLED | uint32(1)<<opts.pinDialLED

	dev, err := openDevice(opts.device, inputMask, outputMask)
	if err != nil {
		return errors.Wrap(err, "open pin device")
	}
	defer dev.Close()

	eng := engine.New(dev, clock.NewWall())
	cfg := engine.DefaultConfig()
	cfg.TickMicros = opts.tick
	cfg.BufferMillis = opts.buffer
	if err := eng.Configure(cfg); err != nil {
		return errors.Wrap(err, "configure engine")
	}
	if err := eng.Initialise(); err != nil {
		return errors.Wrap(err, "initialise engine")
	}
	defer eng.Close()

	var publisher mqtt.Publisher
	var connStatus mqtt.ConnectionStatus
	if opts.broker != "off" && opts.broker != "" {
		real, err := mqtt.NewRealPublisher(opts.broker)
		if err != nil {
			return errors.Wrap(err, "connect mqtt")
		}
		defer real.Close()
		publisher = real
		connStatus = real
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.httpAddr != "" {
		srv := monitor.New(opts.httpAddr, eng)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.httpAddr)
	}

	if opts.influxHost != "" {
		exporter, err := influx.New(influx.Config{
			Host:         opts.influxHost,
			Token:        opts.influxToken,
			Organization: opts.influxOrg,
			Bucket:       opts.influxBucket,
		}, eng)
		if err != nil {
			return errors.Wrap(err, "connect influx")
		}
		go exporter.Run(ctx)
		log.Printf("influx stats export to %s/%s", opts.influxHost, opts.influxBucket)
	}

	// Alert callbacks run on the engine's dispatch cycle; they hand edges
	// to the run loop through a channel so the decoder stays single
	// threaded. A full channel drops the edge rather than stalling
	// dispatch.
	edges := make(chan rotary.Edge, 64)
	forward := func(role rotary.Role) func(pin, level int, tick uint32) {
		return func(pin, level int, tick uint32) {
			if level != 0 && level != 1 {
				return // watchdog timeouts don't reach the dial
			}
			select {
			case edges <- rotary.Edge{Role: role, Level: level, Tick: tick}:
			default:
				log.Printf("dial edge dropped (pin %d)", pin)
			}
		}
	}
	if err := eng.SetAlert(opts.pinHook, forward(rotary.RoleHook)); err != nil {
		return errors.Wrap(err, "register hook alert")
	}
	if err := eng.SetAlert(opts.pinGate, forward(rotary.RoleGate)); err != nil {
		return errors.Wrap(err, "register gate alert")
	}
	if err := eng.SetAlert(opts.pinCounter, forward(rotary.RoleCounter)); err != nil {
		return errors.Wrap(err, "register counter alert")
	}

	// Mirror the dial pins onto a notification handle so remote consumers
	// can watch the raw transitions too.
	handle, err := eng.NotifyOpen()
	if err != nil {
		return errors.Wrap(err, "open notification handle")
	}
	defer eng.NotifyClose(handle)
	if err := eng.NotifyBegin(handle, inputMask); err != nil {
		return errors.Wrap(err, "begin notifications")
	}
	reports, err := eng.NotifyReports(handle)
	if err != nil {
		return errors.Wrap(err, "notification reports")
	}
	if publisher != nil {
		go func() {
			for r := range reports {
				if err := publisher.PublishReport(handle, r); err != nil {
					log.Printf("report publish error: %v", err)
				}
			}
		}()
	}

	// The dialer-ready LED shows the daemon is accepting numbers.
	if err := eng.Write(opts.pinDialLED, 1); err != nil {
		log.Printf("dial led error: %v", err)
	}

	publishSystem(publisher, connStatus, eng, "STARTUP", "", true)
	log.Printf("started: device=%s tick=%dus buffer=%dms broker=%s",
		opts.device, opts.tick, opts.buffer, opts.broker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var hb <-chan time.Time
	if opts.heartbeat > 0 {
		ticker := time.NewTicker(opts.heartbeat)
		defer ticker.Stop()
		hb = ticker.C
	}

	return runLoop(eng, rotary.NewDecoder(opts.maxDigits), publisher, connStatus,
		opts.pinHookLED, edges, hb, sigCh)
}

func runLoop(eng *engine.Engine, dial *rotary.Decoder, publisher mqtt.Publisher,
	connStatus mqtt.ConnectionStatus, pinHookLED int,
	edges <-chan rotary.Edge, hb <-chan time.Time, sig <-chan os.Signal) error {

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			publishSystem(publisher, connStatus, eng, "SHUTDOWN", signalName, true)
			return nil

		case <-hb:
			snap := eng.Stats()
			log.Printf("heartbeat: samples=%d lost=%d handles=%d waves=%d",
				snap.Samples, snap.LostSamples, snap.OpenHandles, snap.LiveWaves)
			publishSystem(publisher, connStatus, eng, "HEARTBEAT", "", false)

		case edge := <-edges:
			for _, event := range dial.Edge(edge) {
				log.Printf("dial event: %s digit=%d number=%q", event.Type, event.Digit, event.Number)
				switch event.Type {
				case rotary.EventOffHook:
					if err := eng.Write(pinHookLED, 1); err != nil {
						log.Printf("hook led error: %v", err)
					}
				case rotary.EventOnHook:
					if err := eng.Write(pinHookLED, 0); err != nil {
						log.Printf("hook led error: %v", err)
					}
				}
				if publisher != nil {
					if err := publisher.PublishDial(event); err != nil {
						log.Printf("dial publish error: %v", err)
					}
				}
			}
		}
	}
}

// publishSystem sends a lifecycle event carrying a full stats snapshot.
func publishSystem(publisher mqtt.Publisher, connStatus mqtt.ConnectionStatus,
	eng *engine.Engine, event, reason string, retained bool) {

	if publisher == nil {
		return
	}
	payload := formatStatusEvent(eng.Stats(), event, reason, connStatus)
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  time.Now(),
		Event:      event,
		Reason:     reason,
		RawPayload: payload,
		Retained:   retained,
	})
	if err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	} else {
		log.Printf("published %s event", event)
	}
}

// statusPayload extends the plain lifecycle payload with an engine snapshot
// and the broker connection state at publish time.
type statusPayload struct {
	Timestamp string          `json:"timestamp"`
	Event     string          `json:"event"`
	Reason    string          `json:"reason,omitempty"`
	Connected bool            `json:"mqtt_connected"`
	Engine    engine.Snapshot `json:"engine"`
}

func formatStatusEvent(snap engine.Snapshot, event, reason string, connStatus mqtt.ConnectionStatus) []byte {
	p := statusPayload{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     event,
		Reason:    reason,
		Engine:    snap,
	}
	if connStatus != nil {
		p.Connected = connStatus.IsConnected()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		log.Printf("failed to marshal %s payload: %v", event, err)
		return nil
	}
	return payload
}

func openDevice(kind string, inputMask, outputMask uint32) (gpio.Device, error) {
	switch kind {
	case "cdev":
		return gpio.NewCdevDevice(inputMask, outputMask)
	case "rpio":
		return gpio.NewRegisterDevice(inputMask, outputMask)
	default:
		return nil, fmt.Errorf("unknown device backend %q", kind)
	}
}
