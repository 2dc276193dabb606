package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/port"
	"github.com/berfenger/tigo2mqtt/pkg/cca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineOptions() EngineOptions {
	return EngineOptions{
		DeviceCap: 4,
		Devices: []domain.DeviceProfile{
			{Slot: 0x25, Address: "04C0-1234", Name: "Roof A1", Inverter: "inv1", MPPT: "1"},
			{Slot: 0x26, Address: "04C0-5678", Name: "Roof A2", Inverter: "inv1", MPPT: "1"},
		},
		Validator:        testValidator(),
		Scaling:          DefaultScaling(),
		StalenessWindow:  5 * time.Minute,
		NightModeTimeout: 60 * time.Minute,
		ResetAtMidnight:  true,
	}
}

func TestEngineTickDecodesAndAggregates(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	e := NewEngine(testEngineOptions(), nil, t0, nil)

	data := append(producing.encode(), withSlot(producing, 0x30).encode()...)
	res := e.Tick(data[:20], t0)
	assert.Equal(1, res.FramesDecoded)
	res = e.Tick(data[20:], t0.Add(30*time.Second))
	assert.Equal(1, res.FramesDecoded)

	devices := e.Devices()
	require.Len(devices, 2)
	assert.Equal("04C0-1234", devices[0].Address)
	assert.Equal("Roof A1", devices[0].Name)
	assert.Equal("slot_48", devices[1].Address, "unmapped slots get a placeholder")

	rec, ok := e.Device("04C0-1234")
	require.True(ok)
	assert.Equal(uint16(802), rec.Latest.VinRaw)

	agg := e.Aggregate()
	assert.InDelta(2*39.9*0.455, agg.PowerSumW, 1e-9)
	assert.Equal(uint64(2), agg.FramesDecoded)
	require.Len(agg.Strings, 1)
	assert.Equal(1, agg.Strings[0].ActiveDevices)

	nodes := e.NodeTable()
	require.Len(nodes, 3)
	assert.Equal("slot_48", nodes[2].Address)
}

func TestEngineCountsLinkErrors(t *testing.T) {

	assert := assert.New(t)

	e := NewEngine(testEngineOptions(), nil, t0, nil)
	data := append([]byte{0xDE, 0xAD, 0xBE}, producing.encode()...)
	res := e.Tick(data, t0)

	assert.Equal(1, res.FramesDecoded)
	assert.Equal(uint64(1), res.InvalidChecksums)
	assert.Equal(uint64(1), res.MissedFrames)
	agg := e.Aggregate()
	assert.Equal(uint64(1), agg.InvalidChecksumCount)
	assert.Equal(uint64(1), agg.MissedFrameCount)
}

func TestEngineRegistryCap(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	opts := testEngineOptions()
	opts.DeviceCap = 1
	e := NewEngine(opts, nil, t0, nil)

	e.Tick(producing.encode(), t0)
	res := e.Tick(withSlot(producing, 0x26).encode(), t0.Add(time.Minute))
	assert.Equal(1, res.Rejected)
	assert.Zero(res.FramesDecoded)

	_, ok := e.Device("04C0-5678")
	assert.False(ok)
	require.Len(e.Devices(), 1)

	agg := e.Aggregate()
	assert.InDelta(39.9*0.455, agg.PowerSumW, 1e-9, "rejected device adds no power")
	assert.InDelta(39.9*0.455/60, agg.EnergyWh, 1e-9, "and no energy")
	assert.Equal(uint64(1), agg.RejectedFull)
}

func TestEngineNightModeCycle(t *testing.T) {

	assert := assert.New(t)

	e := NewEngine(testEngineOptions(), nil, t0, nil)
	e.Tick(producing.encode(), t0)

	now := t0
	var res domain.TickResult
	for i := 0; i < 130; i++ {
		now = now.Add(30 * time.Second)
		res = e.Tick(dark(0x25).encode(), now)
		if res.NightModeChanged {
			break
		}
	}
	assert.True(res.NightModeChanged)
	assert.True(e.NightMode().IsNight())
	assert.GreaterOrEqual(now.Sub(t0), 60*time.Minute)

	res = e.Tick(nil, now.Add(30*time.Second))
	assert.False(res.NightModeChanged)

	res = e.Tick(producing.encode(), now.Add(time.Minute))
	assert.True(res.NightModeChanged, "first non-zero reading ends the night")
	assert.False(e.NightMode().IsNight())
}

func TestEngineMidnightReset(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	clock := &fakeClock{now: time.Date(2024, 6, 1, 23, 58, 0, 0, time.UTC)}
	e := NewEngine(testEngineOptions(), clock, clock.now, nil)

	e.Tick(bytes.Repeat([]byte{0x00}, 3), clock.now)
	e.Tick(producing.encode(), clock.now)
	clock.now = clock.now.Add(time.Minute)
	e.Tick(producing.encode(), clock.now)

	before := e.Aggregate()
	require.Greater(before.EnergyWh, 0.0)
	require.Equal(uint64(1), before.InvalidChecksumCount)

	clock.now = time.Date(2024, 6, 2, 0, 0, 5, 0, time.UTC)
	res := e.Tick(producing.encode(), clock.now)
	assert.True(res.MidnightReset)
	require.NotNil(res.ArchivedDay)
	assert.Equal(domain.DayKey(20240601), res.ArchivedDay.Day)
	assert.Greater(res.ArchivedDay.EnergyWh, before.EnergyWh, "last increment belongs to the old day")

	after := e.Aggregate()
	assert.Zero(after.EnergyWh)
	assert.Equal(before.InvalidChecksumCount, after.InvalidChecksumCount)
	assert.Len(e.Devices(), 1, "devices survive the reset")

	clock.now = clock.now.Add(20 * time.Second)
	res = e.Tick(producing.encode(), clock.now)
	assert.False(res.MidnightReset, "fires once per boundary")
	assert.Len(e.History(), 1)
}

func TestEngineHistoryIsBounded(t *testing.T) {

	opts := testEngineOptions()
	opts.HistoryDays = 3
	clock := &fakeClock{now: t0}
	e := NewEngine(opts, clock, t0, nil)

	for i := 0; i < 6; i++ {
		clock.now = t0.AddDate(0, 0, i)
		e.Tick(nil, clock.now)
	}
	h := e.History()
	assert.Len(t, h, 3)
	assert.Equal(t, domain.DayKeyOf(t0.AddDate(0, 0, 4)), h[2].Day)
}

func TestEngineResetNodeTable(t *testing.T) {

	assert := assert.New(t)

	e := NewEngine(testEngineOptions(), nil, t0, nil)
	e.Tick(append([]byte{0x01}, producing.encode()...), t0)
	e.Tick(producing.encode(), t0.Add(time.Hour))
	energy := e.Aggregate().EnergyWh

	e.ResetNodeTable()
	agg := e.Aggregate()
	assert.Empty(e.Devices())
	assert.Zero(agg.InvalidChecksumCount)
	assert.Zero(agg.MissedFrameCount)
	assert.Zero(agg.PowerSumW)
	assert.Equal(energy, agg.EnergyWh)

	e.ResetEnergy()
	assert.Zero(e.Aggregate().EnergyWh)
}

func TestEngineRestoreEnergy(t *testing.T) {

	assert := assert.New(t)

	clock := &fakeClock{now: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)}

	e := NewEngine(testEngineOptions(), clock, clock.now, nil)
	e.RestoreEnergy(domain.EnergyState{EnergyWh: 1200, Day: 20240602})
	assert.Equal(1200.0, e.Aggregate().EnergyWh, "same day carries over")

	e = NewEngine(testEngineOptions(), clock, clock.now, nil)
	e.RestoreEnergy(domain.EnergyState{
		EnergyWh: 5000,
		Day:      20240601,
		History:  []domain.DailyEnergy{{Day: 20240531, EnergyWh: 4000}},
	})
	assert.Zero(e.Aggregate().EnergyWh, "stale day is archived")
	assert.Equal([]domain.DailyEnergy{{Day: 20240531, EnergyWh: 4000}, {Day: 20240601, EnergyWh: 5000}}, e.History())

	res := e.Tick(nil, clock.now)
	assert.False(res.MidnightReset, "restored day is today")

	st := e.EnergyState(clock.now)
	assert.Equal(domain.DayKey(20240602), st.Day)
	assert.Len(st.History, 2)

	e = NewEngine(testEngineOptions(), port.NoClock{}, clock.now, nil)
	e.RestoreEnergy(domain.EnergyState{EnergyWh: 700, Day: 20240101})
	assert.Equal(700.0, e.Aggregate().EnergyWh, "without a clock the total is kept")
}

func TestEngineDefaultValidatorResyncsAfterStrayByte(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	opts := testEngineOptions()
	opts.Validator = cca.DefaultValidator()
	e := NewEngine(opts, nil, t0, nil)

	data := []byte{0xAA}
	for i := 0; i < 5; i++ {
		data = append(data, producing.encode()...)
	}
	res := e.Tick(data, t0)

	assert.Equal(5, res.FramesDecoded)
	assert.Equal(uint64(1), res.InvalidChecksums, "stray byte is reported once")

	devices := e.Devices()
	require.Len(devices, 1, "no placeholder from a misaligned window")
	assert.Equal("04C0-1234", devices[0].Address)
	assert.Equal(uint16(802), devices[0].Latest.VinRaw)
}

func TestEngineEnergyNeverDecreases(t *testing.T) {

	assert := assert.New(t)

	opts := testEngineOptions()
	opts.Scaling.VoutOffset = -50
	opts.StalenessWindow = 2 * time.Hour
	e := NewEngine(opts, nil, t0, nil)

	e.Tick(producing.encode(), t0)
	e.Tick(producing.encode(), t0.Add(time.Hour))

	agg := e.Aggregate()
	assert.Zero(agg.PowerSumW)
	assert.Zero(agg.EnergyWh)
	rec, ok := e.Device("04C0-1234")
	if assert.True(ok) {
		assert.Zero(rec.Metrics.PeakPowerW)
	}
}

func TestEnginePeakPowerPersistence(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	e := NewEngine(testEngineOptions(), port.NoClock{}, t0, nil)
	e.RestoreEnergy(domain.EnergyState{Peaks: map[string]float64{"04C0-1234": 250, "04C0-5678": 120}})
	e.Tick(producing.encode(), t0)

	rec, ok := e.Device("04C0-1234")
	require.True(ok)
	assert.Equal(250.0, rec.Metrics.PeakPowerW)

	st := e.EnergyState(t0)
	assert.Equal(map[string]float64{"04C0-1234": 250, "04C0-5678": 120}, st.Peaks)

	e.ResetPeakPower()
	rec, _ = e.Device("04C0-1234")
	assert.Zero(rec.Metrics.PeakPowerW)
	assert.Empty(e.EnergyState(t0).Peaks)
}
