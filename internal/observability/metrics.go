package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/events"
	"github.com/berfenger/tigo2mqtt/internal/core/port"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tigo"

// Metrics exports every snapshot as Prometheus gauges. Each registered metric
// kind becomes one gauge vector labelled by optimizer.
type Metrics struct {
	registry  *prometheus.Registry
	staleness time.Duration

	mu       sync.Mutex
	exported map[seriesKey]map[string]bool

	kinds          map[string]*prometheus.GaugeVec
	online         *prometheus.GaugeVec
	powerSum       prometheus.Gauge
	energy         prometheus.Gauge
	devices        prometheus.Gauge
	freshDevices   prometheus.Gauge
	invalid        prometheus.Gauge
	missed         prometheus.Gauge
	rejected       prometheus.Gauge
	nightMode      prometheus.Gauge
	framesTotal    prometheus.Counter
	midnightResets prometheus.Counter
}

var _ port.SnapshotObserver = (*Metrics)(nil)

// seriesKey is the label set of one optimizer.
type seriesKey struct {
	address string
	name    string
}

func NewMetrics(staleness time.Duration) *Metrics {
	labels := []string{"address", "name"}
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		staleness: staleness,
		exported:  map[seriesKey]map[string]bool{},
		kinds:     map[string]*prometheus.GaugeVec{},
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "optimizer", Name: "online",
			Help: "1 when the optimizer reported within the staleness window.",
		}, labels),
		powerSum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "power_watts",
			Help: "Sum of output power over fresh optimizers.",
		}),
		energy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "energy_today_watt_hours",
			Help: "Energy accumulated since the last reset.",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "devices",
			Help: "Optimizers in the registry.",
		}),
		freshDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fresh_devices",
			Help: "Optimizers seen within the staleness window.",
		}),
		invalid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "link", Name: "invalid_checksums",
			Help: "Resync episodes since the last node table reset.",
		}),
		missed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "link", Name: "missed_frames",
			Help: "Frames lost to resync since the last node table reset.",
		}),
		rejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "link", Name: "rejected_frames",
			Help: "Frames dropped because the registry was full.",
		}),
		nightMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "night_mode",
			Help: "1 while night mode is active.",
		}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "link", Name: "frames_decoded_total",
			Help: "Frames decoded since process start.",
		}),
		midnightResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "midnight_resets_total",
			Help: "Energy resets triggered by the day rolling over.",
		}),
	}

	for _, k := range events.MetricKinds {
		m.kinds[k.Id] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "optimizer", Name: k.Id,
			Help: k.Name,
		}, labels)
		m.registry.MustRegister(m.kinds[k.Id])
	}

	m.registry.MustRegister(
		m.online,
		m.powerSum,
		m.energy,
		m.devices,
		m.freshDevices,
		m.invalid,
		m.missed,
		m.rejected,
		m.nightMode,
		m.framesTotal,
		m.midnightResets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSnapshot updates series in place. Only label sets that left the
// registry, or kinds a device no longer reports, are deleted, so a scrape
// never sees the vectors half empty.
func (m *Metrics) ObserveSnapshot(s domain.Snapshot, tick domain.TickResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[seriesKey]map[string]bool, len(s.Devices))
	for _, rec := range s.Devices {
		key := seriesKey{address: rec.Address, name: rec.Name}
		kinds := map[string]bool{}
		for _, k := range events.MetricKinds {
			if v, ok := k.Extract(rec); ok {
				m.kinds[k.Id].WithLabelValues(key.address, key.name).Set(v)
				kinds[k.Id] = true
			}
		}
		m.online.WithLabelValues(key.address, key.name).Set(boolGauge(rec.Fresh(s.TakenAt, m.staleness)))
		seen[key] = kinds
	}
	for key, kinds := range m.exported {
		current, present := seen[key]
		for id := range kinds {
			if !current[id] {
				m.kinds[id].DeleteLabelValues(key.address, key.name)
			}
		}
		if !present {
			m.online.DeleteLabelValues(key.address, key.name)
		}
	}
	m.exported = seen

	agg := s.Aggregate
	m.powerSum.Set(agg.PowerSumW)
	m.energy.Set(agg.EnergyWh)
	m.devices.Set(float64(agg.DeviceCount))
	m.freshDevices.Set(float64(agg.FreshDeviceCount))
	m.invalid.Set(float64(agg.InvalidChecksumCount))
	m.missed.Set(float64(agg.MissedFrameCount))
	m.rejected.Set(float64(agg.RejectedFull))
	m.nightMode.Set(boolGauge(s.NightMode.IsNight()))

	m.framesTotal.Add(float64(tick.FramesDecoded))
	if tick.MidnightReset {
		m.midnightResets.Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
