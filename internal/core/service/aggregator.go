package service

import (
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
)

const DefaultStalenessWindow = 5 * time.Minute

// Aggregator folds the registry into system-wide figures. Energy is the
// trapezoid integral of the power sum over the wall time actually elapsed
// between two recomputes.
type Aggregator struct {
	staleness time.Duration
	state     domain.AggregateState
}

func NewAggregator(staleness time.Duration) *Aggregator {
	if staleness <= 0 {
		staleness = DefaultStalenessWindow
	}
	return &Aggregator{staleness: staleness}
}

func (a *Aggregator) Staleness() time.Duration {
	return a.staleness
}

func (a *Aggregator) Recompute(records []domain.DeviceRecord, now time.Time) domain.AggregateState {
	power := 0.0
	fresh := 0
	var strs []domain.StringAggregate
	index := map[[2]string]int{}

	for _, rec := range records {
		if !rec.Fresh(now, a.staleness) {
			continue
		}
		fresh++
		power += rec.Readings.PowerW

		if rec.Inverter == "" && rec.MPPT == "" {
			continue
		}
		key := [2]string{rec.Inverter, rec.MPPT}
		i, ok := index[key]
		if !ok {
			i = len(strs)
			index[key] = i
			strs = append(strs, domain.StringAggregate{Inverter: rec.Inverter, MPPT: rec.MPPT})
		}
		addToString(&strs[i], rec)
	}
	for i := range strs {
		n := float64(strs[i].ActiveDevices)
		strs[i].AvgVinV /= n
		strs[i].AvgTempC /= n
	}

	// a clock that steps back integrates nothing and re-anchors at now
	last := a.state.LastAggregation
	if !last.IsZero() && now.After(last) {
		a.state.EnergyWh += (a.state.PowerSumW + power) / 2 * now.Sub(last).Hours()
	}
	a.state.LastAggregation = now

	a.state.PowerSumW = power
	a.state.DeviceCount = len(records)
	a.state.FreshDeviceCount = fresh
	a.state.Strings = strs
	return a.state.Copy()
}

func addToString(s *domain.StringAggregate, rec domain.DeviceRecord) {
	s.ActiveDevices++
	s.PowerW += rec.Readings.PowerW
	s.AvgVinV += rec.Readings.VinV
	s.AvgTempC += rec.Readings.TemperatureC
	if eff := rec.Metrics.Efficiency; eff != nil {
		if s.MinEfficiency == nil || *eff < *s.MinEfficiency {
			s.MinEfficiency = domain.Float(*eff)
		}
		if s.MaxEfficiency == nil || *eff > *s.MaxEfficiency {
			s.MaxEfficiency = domain.Float(*eff)
		}
	}
}

func (a *Aggregator) AddLinkErrors(invalid, missed uint64) {
	a.state.InvalidChecksumCount += invalid
	a.state.MissedFrameCount += missed
}

func (a *Aggregator) AddDecoded(frames int, rejected int) {
	a.state.FramesDecoded += uint64(frames)
	a.state.RejectedFull += uint64(rejected)
}

func (a *Aggregator) SetEnergy(wh float64) {
	a.state.EnergyWh = wh
}

// ResetEnergy zeroes the energy total only.
func (a *Aggregator) ResetEnergy() {
	a.state.EnergyWh = 0
}

// ResetCounters zeroes power and every counter but keeps the energy total
// and the integration anchor.
func (a *Aggregator) ResetCounters() {
	a.state = domain.AggregateState{
		EnergyWh:        a.state.EnergyWh,
		LastAggregation: a.state.LastAggregation,
	}
}

func (a *Aggregator) State() domain.AggregateState {
	return a.state.Copy()
}
