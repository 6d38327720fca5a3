// Package influx periodically writes engine statistics to an InfluxDB
// bucket, for dashboarding the daemon alongside the rest of the household
// telemetry.
package influx

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"

	"github.com/alicemirror/PiRotary/internal/engine"
)

// Measurement is the point name engine stats land under.
const Measurement = "pirotary_engine"

// Config locates the target bucket.
type Config struct {
	Host         string
	Token        string
	Organization string
	Bucket       string
	Interval     time.Duration
}

// Exporter writes periodic stats points.
type Exporter struct {
	cfg      Config
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	source   interface{ Stats() engine.Snapshot }
}

// New connects the exporter and verifies the server is reachable.
func New(cfg Config, source interface{ Stats() engine.Snapshot }) (*Exporter, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	client := influxdb2.NewClient(cfg.Host, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to reach influx server")
	}

	return &Exporter{
		cfg:      cfg,
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		source:   source,
	}, nil
}

// Run exports until ctx is cancelled, then closes the client.
func (e *Exporter) Run(ctx context.Context) {
	defer e.client.Close()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.export(ctx); err != nil {
				log.Printf("influx: %v", err)
			}
		}
	}
}

func (e *Exporter) export(ctx context.Context) error {
	snap := e.source.Stats()
	point := influxdb2.NewPoint(Measurement,
		map[string]string{},
		map[string]interface{}{
			"samples":      int64(snap.Samples),
			"lost_samples": int64(snap.LostSamples),
			"open_handles": snap.OpenHandles,
			"live_waves":   snap.LiveWaves,
			"transmitting": snap.Transmitting,
			"wave_micros":  int64(snap.Wave.Micros),
			"high_micros":  int64(snap.Wave.HighMicros),
			"wave_pulses":  snap.Wave.Pulses,
			"high_pulses":  snap.Wave.HighPulses,
		},
		time.Now())

	if err := e.writeAPI.WritePoint(ctx, point); err != nil {
		return errors.Wrap(err, "failed to write stats point")
	}
	return nil
}
