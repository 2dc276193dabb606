package service

import (
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(addr string, power float64, lastSeen time.Time) domain.DeviceRecord {
	return domain.DeviceRecord{
		DeviceProfile: domain.DeviceProfile{Address: addr},
		Readings:      domain.Readings{PowerW: power, VinV: 40, TemperatureC: 20},
		LastSeen:      lastSeen,
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {

	assert := assert.New(t)

	a := NewAggregator(0)
	records := []domain.DeviceRecord{record("a", 100, t0), record("b", 50, t0)}

	a.Recompute(records, t0)
	first := a.Recompute(records, t0.Add(time.Hour))
	second := a.Recompute(records, t0.Add(time.Hour))

	assert.Equal(first, second, "same snapshot and now must not accumulate twice")
	assert.InDelta(0.0, first.PowerSumW, 1e-9, "records are stale an hour later")
}

func TestRecomputeTrapezoid(t *testing.T) {

	assert := assert.New(t)

	a := NewAggregator(time.Hour)

	s := a.Recompute([]domain.DeviceRecord{record("a", 100, t0)}, t0)
	assert.Equal(100.0, s.PowerSumW)
	assert.Zero(s.EnergyWh, "first pass only anchors")

	at := t0.Add(30 * time.Minute)
	s = a.Recompute([]domain.DeviceRecord{record("a", 300, at)}, at)
	assert.InDelta(100.0, s.EnergyWh, 1e-9, "(100+300)/2 W over half an hour")

	// an irregular gap uses the real elapsed time
	at2 := at.Add(90 * time.Minute)
	s = a.Recompute([]domain.DeviceRecord{record("a", 300, at2)}, at2)
	assert.InDelta(100.0+450.0, s.EnergyWh, 1e-9)
}

func TestRecomputeExcludesStale(t *testing.T) {

	assert := assert.New(t)

	a := NewAggregator(5 * time.Minute)
	now := t0.Add(10 * time.Minute)
	s := a.Recompute([]domain.DeviceRecord{
		record("fresh", 120, now.Add(-time.Minute)),
		record("stale", 500, now.Add(-6*time.Minute)),
	}, now)

	assert.Equal(120.0, s.PowerSumW)
	assert.Equal(2, s.DeviceCount, "stale records stay listed")
	assert.Equal(1, s.FreshDeviceCount)
}

func TestRecomputeClockBackwards(t *testing.T) {

	assert := assert.New(t)

	a := NewAggregator(time.Hour)
	a.Recompute([]domain.DeviceRecord{record("a", 100, t0)}, t0)

	back := t0.Add(-10 * time.Minute)
	s := a.Recompute([]domain.DeviceRecord{record("a", 100, back)}, back)
	assert.Zero(s.EnergyWh)
	assert.Equal(back, s.LastAggregation)

	s = a.Recompute([]domain.DeviceRecord{record("a", 100, t0)}, t0)
	assert.InDelta(100.0/6, s.EnergyWh, 1e-9, "integration resumes from the new anchor")
}

func TestRecomputeStrings(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	a := NewAggregator(time.Hour)
	r1 := record("a", 100, t0)
	r1.Inverter, r1.MPPT = "inv1", "1"
	r1.Metrics.Efficiency = domain.Float(97)
	r2 := record("b", 50, t0)
	r2.Inverter, r2.MPPT = "inv1", "1"
	r2.Readings.VinV = 30
	r2.Metrics.Efficiency = domain.Float(99)
	r3 := record("c", 10, t0)
	r3.Inverter, r3.MPPT = "inv1", "2"
	r4 := record("d", 10, t0)

	s := a.Recompute([]domain.DeviceRecord{r1, r2, r3, r4}, t0)
	require.Len(s.Strings, 2)

	str := s.Strings[0]
	assert.Equal("inv1", str.Inverter)
	assert.Equal("1", str.MPPT)
	assert.Equal(2, str.ActiveDevices)
	assert.Equal(150.0, str.PowerW)
	assert.Equal(35.0, str.AvgVinV)
	assert.Equal(20.0, str.AvgTempC)
	require.NotNil(str.MinEfficiency)
	assert.Equal(97.0, *str.MinEfficiency)
	assert.Equal(99.0, *str.MaxEfficiency)

	assert.Nil(s.Strings[1].MinEfficiency)
	assert.Equal(170.0, s.PowerSumW)
}

func TestAggregatorResets(t *testing.T) {

	assert := assert.New(t)

	a := NewAggregator(time.Hour)
	a.Recompute([]domain.DeviceRecord{record("a", 100, t0)}, t0)
	a.Recompute([]domain.DeviceRecord{record("a", 100, t0)}, t0.Add(time.Hour))
	a.AddLinkErrors(3, 4)
	a.AddDecoded(10, 1)

	a.ResetCounters()
	s := a.State()
	assert.InDelta(100.0, s.EnergyWh, 1e-9, "counters reset keeps energy")
	assert.Zero(s.InvalidChecksumCount)
	assert.Zero(s.MissedFrameCount)
	assert.Zero(s.FramesDecoded)
	assert.Zero(s.RejectedFull)

	a.AddLinkErrors(1, 1)
	a.ResetEnergy()
	s = a.State()
	assert.Zero(s.EnergyWh)
	assert.Equal(uint64(1), s.InvalidChecksumCount, "energy reset keeps counters")
}
