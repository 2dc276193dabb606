package domain

import (
	"time"

	"github.com/berfenger/tigo2mqtt/pkg/cca"
)

type NightMode string

const (
	NIGHT_MODE_DAY   NightMode = "day"
	NIGHT_MODE_NIGHT NightMode = "night"
)

// DeviceProfile is the externally configured identity of an optimizer.
type DeviceProfile struct {
	Address     string  `json:"address" yaml:"address"`
	Name        string  `json:"name" yaml:"name"`
	Slot        uint8   `json:"slot" yaml:"slot"`
	Inverter    string  `json:"inverter,omitempty" yaml:"inverter,omitempty"`
	MPPT        string  `json:"mppt,omitempty" yaml:"mppt,omitempty"`
	RatedPowerW float64 `json:"rated_power_w,omitempty" yaml:"rated_power_w,omitempty"`
	PowerFactor float64 `json:"power_factor,omitempty" yaml:"power_factor,omitempty"`
}

// Readings are the scaled engineering values of the latest telemetry.
type Readings struct {
	VinV         float64 `json:"vin_v"`
	VoutV        float64 `json:"vout_v"`
	IinA         float64 `json:"iin_a"`
	TemperatureC float64 `json:"temperature_c"`
	DutyCycle    float64 `json:"duty_cycle"`
	InputPowerW  float64 `json:"input_power_w"`
	PowerW       float64 `json:"power_w"`
}

type Metrics struct {
	Efficiency  *float64 `json:"efficiency,omitempty"`
	PowerFactor *float64 `json:"power_factor,omitempty"`
	LoadFactor  *float64 `json:"load_factor,omitempty"`
	PeakPowerW  float64  `json:"peak_power_w"`
}

type DeviceRecord struct {
	DeviceProfile
	Latest     cca.Telemetry `json:"latest"`
	Readings   Readings      `json:"readings"`
	Metrics    Metrics       `json:"metrics"`
	FirstSeen  time.Time     `json:"first_seen"`
	LastSeen   time.Time     `json:"last_seen"`
	FrameCount uint64        `json:"frame_count"`
}

// Copy returns a record that shares no memory with r.
func (r DeviceRecord) Copy() DeviceRecord {
	r.Metrics.Efficiency = copyFloat(r.Metrics.Efficiency)
	r.Metrics.PowerFactor = copyFloat(r.Metrics.PowerFactor)
	r.Metrics.LoadFactor = copyFloat(r.Metrics.LoadFactor)
	return r
}

// Fresh reports whether the record was seen within window of now.
func (r DeviceRecord) Fresh(now time.Time, window time.Duration) bool {
	return !r.LastSeen.IsZero() && now.Sub(r.LastSeen) <= window
}

type StringAggregate struct {
	Inverter      string   `json:"inverter"`
	MPPT          string   `json:"mppt"`
	ActiveDevices int      `json:"active_devices"`
	PowerW        float64  `json:"power_w"`
	AvgVinV       float64  `json:"avg_vin_v"`
	AvgTempC      float64  `json:"avg_temperature_c"`
	MinEfficiency *float64 `json:"min_efficiency,omitempty"`
	MaxEfficiency *float64 `json:"max_efficiency,omitempty"`
}

type AggregateState struct {
	PowerSumW            float64           `json:"power_sum_w"`
	EnergyWh             float64           `json:"energy_wh"`
	DeviceCount          int               `json:"device_count"`
	FreshDeviceCount     int               `json:"fresh_device_count"`
	InvalidChecksumCount uint64            `json:"invalid_checksum_count"`
	MissedFrameCount     uint64            `json:"missed_frame_count"`
	FramesDecoded        uint64            `json:"frames_decoded"`
	RejectedFull         uint64            `json:"rejected_full"`
	Strings              []StringAggregate `json:"strings,omitempty"`
	LastAggregation      time.Time         `json:"last_aggregation"`
}

func (a AggregateState) Copy() AggregateState {
	if a.Strings != nil {
		strs := make([]StringAggregate, len(a.Strings))
		for i, s := range a.Strings {
			s.MinEfficiency = copyFloat(s.MinEfficiency)
			s.MaxEfficiency = copyFloat(s.MaxEfficiency)
			strs[i] = s
		}
		a.Strings = strs
	}
	return a
}

type NightModeState struct {
	Mode         NightMode `json:"mode"`
	LastActiveAt time.Time `json:"last_active_at"`
	Since        time.Time `json:"since"`
}

func (s NightModeState) IsNight() bool {
	return s.Mode == NIGHT_MODE_NIGHT
}

// DayKey identifies a calendar day as YYYYMMDD.
type DayKey int

func DayKeyOf(t time.Time) DayKey {
	y, m, d := t.Date()
	return DayKey(y*10000 + int(m)*100 + d)
}

type DailyEnergy struct {
	Day      DayKey  `json:"day"`
	EnergyWh float64 `json:"energy_wh"`
}

// EnergyState is the part of the aggregate that survives restarts.
type EnergyState struct {
	EnergyWh float64
	Day      DayKey
	History  []DailyEnergy
	// Peaks holds the peak output power per optimizer address.
	Peaks   map[string]float64
	SavedAt time.Time
}

type Snapshot struct {
	Devices   []DeviceRecord `json:"devices"`
	Aggregate AggregateState `json:"aggregate"`
	NightMode NightModeState `json:"night_mode"`
	History   []DailyEnergy  `json:"history"`
	TakenAt   time.Time      `json:"taken_at"`
}

// TickResult summarises one engine pass.
type TickResult struct {
	FramesDecoded    int
	InvalidChecksums uint64
	MissedFrames     uint64
	NewDevices       []DeviceRecord
	Rejected         int
	NightModeChanged bool
	MidnightReset    bool
	ArchivedDay      *DailyEnergy
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func Float(v float64) *float64 {
	return &v
}
