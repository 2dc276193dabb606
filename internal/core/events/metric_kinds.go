package events

import (
	. "github.com/berfenger/tigo2mqtt/internal/core/domain"
)

const (
	KIND_POWER        = "power"
	KIND_INPUT_POWER  = "input_power"
	KIND_VIN          = "vin"
	KIND_VOUT         = "vout"
	KIND_IIN          = "iin"
	KIND_TEMPERATURE  = "temperature"
	KIND_DUTY_CYCLE   = "duty_cycle"
	KIND_EFFICIENCY   = "efficiency"
	KIND_POWER_FACTOR = "power_factor"
	KIND_LOAD_FACTOR  = "load_factor"
	KIND_PEAK_POWER   = "peak_power"
	KIND_ONLINE       = "online"
)

// MetricKind describes one per-optimizer metric: how to read it from a
// record and how to announce it. Discovery, state publishing and the
// metric exporters all walk MetricKinds.
type MetricKind struct {
	Id          string
	Name        string
	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string
	Decimals    uint
	Diagnostic  bool
	// ZeroAtNight kinds are published as 0 while night mode is active.
	ZeroAtNight bool
	Extract     func(DeviceRecord) (float64, bool)
}

func always(f func(DeviceRecord) float64) func(DeviceRecord) (float64, bool) {
	return func(r DeviceRecord) (float64, bool) {
		return f(r), true
	}
}

func optional(f func(DeviceRecord) *float64) func(DeviceRecord) (float64, bool) {
	return func(r DeviceRecord) (float64, bool) {
		v := f(r)
		if v == nil {
			return 0, false
		}
		return *v, true
	}
}

var MetricKinds = []MetricKind{
	{
		Id: KIND_POWER, Name: "Power", Unit: "W",
		DeviceClass: DEVICE_CLASS_POWER, StateClass: STATE_CLASS_MEASUREMENT,
		Decimals: 1, ZeroAtNight: true,
		Extract: always(func(r DeviceRecord) float64 { return r.Readings.PowerW }),
	},
	{
		Id: KIND_INPUT_POWER, Name: "Input power", Unit: "W",
		DeviceClass: DEVICE_CLASS_POWER, StateClass: STATE_CLASS_MEASUREMENT,
		Decimals: 1, ZeroAtNight: true,
		Extract: always(func(r DeviceRecord) float64 { return r.Readings.InputPowerW }),
	},
	{
		Id: KIND_VIN, Name: "Input voltage", Unit: "V",
		DeviceClass: DEVICE_CLASS_VOLTAGE, StateClass: STATE_CLASS_MEASUREMENT,
		Decimals: 2, ZeroAtNight: true,
		Extract: always(func(r DeviceRecord) float64 { return r.Readings.VinV }),
	},
	{
		Id: KIND_VOUT, Name: "Output voltage", Unit: "V",
		DeviceClass: DEVICE_CLASS_VOLTAGE, StateClass: STATE_CLASS_MEASUREMENT,
		Decimals: 2, ZeroAtNight: true,
		Extract: always(func(r DeviceRecord) float64 { return r.Readings.VoutV }),
	},
	{
		Id: KIND_IIN, Name: "Current", Unit: "A",
		DeviceClass: DEVICE_CLASS_CURRENT, StateClass: STATE_CLASS_MEASUREMENT,
		Decimals: 3, ZeroAtNight: true,
		Extract: always(func(r DeviceRecord) float64 { return r.Readings.IinA }),
	},
	{
		Id: KIND_TEMPERATURE, Name: "Temperature", Unit: "°C",
		DeviceClass: DEVICE_CLASS_TEMPERATURE, StateClass: STATE_CLASS_MEASUREMENT,
		Decimals: 1,
		Extract:  always(func(r DeviceRecord) float64 { return r.Readings.TemperatureC }),
	},
	{
		Id: KIND_DUTY_CYCLE, Name: "Duty cycle", Unit: "%",
		StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:sine-wave",
		Decimals: 1, Diagnostic: true, ZeroAtNight: true,
		Extract: always(func(r DeviceRecord) float64 { return r.Readings.DutyCycle }),
	},
	{
		Id: KIND_EFFICIENCY, Name: "Efficiency", Unit: "%",
		StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:percent",
		Decimals: 1,
		Extract:  optional(func(r DeviceRecord) *float64 { return r.Metrics.Efficiency }),
	},
	{
		Id: KIND_POWER_FACTOR, Name: "Power factor",
		DeviceClass: DEVICE_CLASS_POWER_FACTOR, StateClass: STATE_CLASS_MEASUREMENT,
		Decimals: 2, Diagnostic: true,
		Extract: optional(func(r DeviceRecord) *float64 { return r.Metrics.PowerFactor }),
	},
	{
		Id: KIND_LOAD_FACTOR, Name: "Load factor",
		StateClass: STATE_CLASS_MEASUREMENT, Icon: "mdi:gauge",
		Decimals: 2, ZeroAtNight: true,
		Extract: optional(func(r DeviceRecord) *float64 { return r.Metrics.LoadFactor }),
	},
	{
		Id: KIND_PEAK_POWER, Name: "Peak power", Unit: "W",
		DeviceClass: DEVICE_CLASS_POWER, StateClass: STATE_CLASS_MEASUREMENT,
		Icon: "mdi:chart-bell-curve", Decimals: 1,
		Extract: always(func(r DeviceRecord) float64 { return r.Metrics.PeakPowerW }),
	},
}

// MetricKindById returns the kind registered under id.
func MetricKindById(id string) (MetricKind, bool) {
	for _, k := range MetricKinds {
		if k.Id == id {
			return k, true
		}
	}
	return MetricKind{}, false
}

// DeviceSensors lists the discovery entities of one optimizer.
func DeviceSensors(profile DeviceProfile, bridgeDevice Device) []GenericSensor {

	dev := OptimizerDevice(profile, bridgeDevice)
	var sensors []GenericSensor

	for _, k := range MetricKinds {
		id := DeviceSensorId(profile.Address, k.Id)
		s := GenericSensor{
			Device:            dev,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              k.Name,
			UniqueId:          UniqueId(dev.Id, k.Id),
			UnitOfMeasurement: k.Unit,
			StateClass:        k.StateClass,
			DeviceClass:       k.DeviceClass,
			Icon:              k.Icon,
			Precision:         k.Decimals,
		}
		if k.Diagnostic {
			s.EntityCategory = ENTITY_CLASS_DIAGNOSTIC
		}
		sensors = append(sensors, s)
	}

	sensors = append(sensors, GenericSensor{
		Device:         dev,
		Id:             DeviceSensorId(profile.Address, KIND_ONLINE),
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Online",
		UniqueId:       UniqueId(dev.Id, KIND_ONLINE),
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
	})

	return sensors
}
