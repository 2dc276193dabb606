package events

import (
	"time"

	. "github.com/berfenger/tigo2mqtt/internal/core/domain"
)

func AggregateToUpdateEvents(agg AggregateState, night NightModeState, history []DailyEnergy) []any {
	var events []any

	// Total power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_TOTAL_POWER,
		},
		Value:    agg.PowerSumW,
		Decimals: 1,
	})
	// Energy today
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_TOTAL_ENERGY,
		},
		Value:    agg.EnergyWh / 1000,
		Decimals: 3,
	})
	// Energy yesterday
	if len(history) > 0 {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_ENERGY_YESTERDAY,
			},
			Value:    history[len(history)-1].EnergyWh / 1000,
			Decimals: 3,
		})
	}
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_DEVICE_COUNT,
		},
		Value: float64(agg.DeviceCount),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ACTIVE_DEVICE_COUNT,
		},
		Value: float64(agg.FreshDeviceCount),
	})
	// Link health
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_INVALID_CHECKSUM_COUNT,
		},
		Value: float64(agg.InvalidChecksumCount),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_MISSED_FRAME_COUNT,
		},
		Value: float64(agg.MissedFrameCount),
	})
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_NIGHT_MODE,
		},
		Value: night.IsNight(),
	})

	return events
}

func DeviceToUpdateEvents(rec DeviceRecord, now time.Time, staleness time.Duration) []any {
	var events []any
	for _, k := range MetricKinds {
		v, ok := k.Extract(rec)
		if !ok {
			continue
		}
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: DeviceSensorId(rec.Address, k.Id),
			},
			Value:    v,
			Decimals: k.Decimals,
		})
	}
	events = append(events, DeviceOnlineUpdateEvent(rec, now, staleness))
	return events
}

func DeviceOnlineUpdateEvent(rec DeviceRecord, now time.Time, staleness time.Duration) any {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: DeviceSensorId(rec.Address, KIND_ONLINE),
		},
		Value: rec.Fresh(now, staleness),
	}
}

// NightZeroUpdateEvents replaces the last daylight values of the
// production kinds with zeros.
func NightZeroUpdateEvents(rec DeviceRecord) []any {
	var events []any
	for _, k := range MetricKinds {
		if !k.ZeroAtNight {
			continue
		}
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: DeviceSensorId(rec.Address, k.Id),
			},
			Value:    0,
			Decimals: k.Decimals,
		})
	}
	return events
}

// SnapshotToUpdateEvents turns a full snapshot into sensor updates. In
// night mode per-device production values are only emitted when zeroes is
// set, as zeros.
func SnapshotToUpdateEvents(s Snapshot, staleness time.Duration, zeroes bool) []any {
	events := AggregateToUpdateEvents(s.Aggregate, s.NightMode, s.History)
	for _, rec := range s.Devices {
		if !s.NightMode.IsNight() {
			events = append(events, DeviceToUpdateEvents(rec, s.TakenAt, staleness)...)
			continue
		}
		if zeroes {
			events = append(events, NightZeroUpdateEvents(rec)...)
		}
		events = append(events, DeviceOnlineUpdateEvent(rec, s.TakenAt, staleness))
	}
	return events
}
