package influx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/config"
	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/events"
	"github.com/berfenger/tigo2mqtt/internal/core/port"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const (
	MEASUREMENT_OPTIMIZER = "tigo_optimizer"
	MEASUREMENT_AGGREGATE = "tigo_aggregate"

	pingTimeout = 5 * time.Second
)

var ErrUnreachable = errors.New("influxdb unreachable")

// Sink writes one point per fresh optimizer plus one aggregate point for
// every snapshot.
type Sink struct {
	client    influxdb2.Client
	writeAPI  influxapi.WriteAPIBlocking
	staleness time.Duration
	logger    *zap.Logger
}

var _ port.HistorySink = (*Sink)(nil)

func NewSink(cfg config.InfluxConfig, staleness time.Duration, logger *zap.Logger) (*Sink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx: url, org and bucket are required")
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, influxdb2.DefaultOptions().SetUseGZip(true))

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx: ping %s: %w", cfg.URL, err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("influx: ping %s: %w", cfg.URL, ErrUnreachable)
	}

	return &Sink{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		staleness: staleness,
		logger:    logger.With(zap.String("sink", "influx")),
	}, nil
}

func (s *Sink) WriteSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	points := SnapshotPoints(snapshot, s.staleness)
	if len(points) == 0 {
		return nil
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

func (s *Sink) Close() error {
	s.client.Close()
	return nil
}

// SnapshotPoints renders a snapshot as line protocol points. Devices not
// seen within staleness are skipped.
func SnapshotPoints(snapshot domain.Snapshot, staleness time.Duration) []*write.Point {
	ts := snapshot.TakenAt
	if ts.IsZero() {
		ts = time.Now()
	}
	var points []*write.Point
	for _, rec := range snapshot.Devices {
		if !rec.Fresh(ts, staleness) {
			continue
		}
		fields := map[string]any{}
		for _, k := range events.MetricKinds {
			if v, ok := k.Extract(rec); ok {
				fields[k.Id] = v
			}
		}
		tags := map[string]string{
			"address": rec.Address,
			"name":    rec.Name,
		}
		if rec.Inverter != "" {
			tags["inverter"] = rec.Inverter
		}
		if rec.MPPT != "" {
			tags["mppt"] = rec.MPPT
		}
		points = append(points, influxdb2.NewPoint(MEASUREMENT_OPTIMIZER, tags, fields, rec.LastSeen))
	}

	agg := snapshot.Aggregate
	points = append(points, influxdb2.NewPoint(MEASUREMENT_AGGREGATE, map[string]string{}, map[string]any{
		"power_w":                agg.PowerSumW,
		"energy_wh":              agg.EnergyWh,
		"device_count":           agg.DeviceCount,
		"fresh_device_count":     agg.FreshDeviceCount,
		"invalid_checksum_count": agg.InvalidChecksumCount,
		"missed_frame_count":     agg.MissedFrameCount,
		"night_mode":             snapshot.NightMode.IsNight(),
	}, ts))
	return points
}
