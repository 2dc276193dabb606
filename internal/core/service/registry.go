package service

import (
	"errors"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/pkg/cca"
	"go.uber.org/zap"
)

var ErrRegistryFull = errors.New("device registry full")

// Registry holds the latest state of every known optimizer, in the order
// they were first seen. New addresses are rejected once capacity is reached.
type Registry struct {
	capacity int
	deriver  MetricsDeriver
	order    []string
	records  map[string]*domain.DeviceRecord
	// peaks restored for addresses not seen since startup or a clear
	pending map[string]float64
	logger  *zap.Logger
}

func NewRegistry(capacity int, deriver MetricsDeriver, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		capacity: capacity,
		deriver:  deriver,
		records:  make(map[string]*domain.DeviceRecord),
		pending:  make(map[string]float64),
		logger:   logger,
	}
}

// Upsert commits telemetry for profile.Address. It reports whether a new
// record was created. ErrRegistryFull leaves the registry untouched.
func (r *Registry) Upsert(profile domain.DeviceProfile, t cca.Telemetry, now time.Time) (bool, error) {
	rec, ok := r.records[profile.Address]
	created := false
	if !ok {
		if r.capacity > 0 && len(r.records) >= r.capacity {
			r.logger.Debug("registry: rejected new device", zap.String("address", profile.Address), zap.Int("capacity", r.capacity))
			return false, ErrRegistryFull
		}
		rec = &domain.DeviceRecord{FirstSeen: now}
		if peak, ok := r.pending[profile.Address]; ok {
			rec.Metrics.PeakPowerW = peak
			delete(r.pending, profile.Address)
		}
		r.records[profile.Address] = rec
		r.order = append(r.order, profile.Address)
		created = true
	}

	readings, metrics := r.deriver.Derive(t, profile)
	metrics.PeakPowerW = rec.Metrics.PeakPowerW
	if readings.PowerW > metrics.PeakPowerW {
		metrics.PeakPowerW = readings.PowerW
	}

	rec.DeviceProfile = profile
	rec.Latest = t
	rec.Readings = readings
	rec.Metrics = metrics
	rec.LastSeen = now
	rec.FrameCount++
	return created, nil
}

func (r *Registry) Get(address string) (domain.DeviceRecord, bool) {
	rec, ok := r.records[address]
	if !ok {
		return domain.DeviceRecord{}, false
	}
	return rec.Copy(), true
}

func (r *Registry) List() []domain.DeviceRecord {
	out := make([]domain.DeviceRecord, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.records[addr].Copy())
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// Clear forgets every record. Peak power outlives the records and is handed
// back to each address when it reports again.
func (r *Registry) Clear() {
	for addr, rec := range r.records {
		if rec.Metrics.PeakPowerW > 0 {
			r.pending[addr] = rec.Metrics.PeakPowerW
		}
	}
	r.order = nil
	r.records = make(map[string]*domain.DeviceRecord)
}

// RestorePeaks seeds peak power per address. A known record keeps the larger
// of its own peak and the restored one.
func (r *Registry) RestorePeaks(peaks map[string]float64) {
	for addr, peak := range peaks {
		if peak <= 0 {
			continue
		}
		if rec, ok := r.records[addr]; ok {
			rec.Metrics.PeakPowerW = max(rec.Metrics.PeakPowerW, peak)
			continue
		}
		r.pending[addr] = peak
	}
}

// Peaks returns every non-zero peak, including restored ones for addresses
// that have not reported yet.
func (r *Registry) Peaks() map[string]float64 {
	out := make(map[string]float64, len(r.records)+len(r.pending))
	for addr, peak := range r.pending {
		out[addr] = peak
	}
	for addr, rec := range r.records {
		if rec.Metrics.PeakPowerW > 0 {
			out[addr] = rec.Metrics.PeakPowerW
		}
	}
	return out
}

func (r *Registry) ResetPeaks() {
	for _, rec := range r.records {
		rec.Metrics.PeakPowerW = 0
	}
	r.pending = make(map[string]float64)
}
