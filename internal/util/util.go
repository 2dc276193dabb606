package util

import (
	"github.com/berfenger/tigo2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialConfig{
			Device:            "/dev/null",
			BaudRate:          38400,
			ReadTimeoutMillis: 20,
			ReadMaxBytes:      1024,
			CommandGapMillis:  10,
		},
		Tigo: config.TigoConfig{
			NumberOfDevices: 4,
			Devices: []config.DeviceConfig{
				{Slot: 0x25, Address: "04C0-1234", Name: "Roof A1", Inverter: "inv1", MPPT: "1", RatedPowerW: 400},
				{Slot: 0x26, Address: "04C0-5678", Name: "Roof A2", Inverter: "inv1", MPPT: "1", RatedPowerW: 400},
			},
			StalenessMinutes: 5,
			HistoryDays:      7,
		},
		Validator: config.ValidatorConfig{
			Header:  "5030",
			SlotMin: 0,
			SlotMax: 0x7F,
		},
		Scaling: config.ScalingConfig{
			VinScale:         0.05,
			VoutScale:        0.10,
			IinScale:         0.005,
			TempScale:        0.1,
			PowerCalibration: 1.0,
		},
		NightMode: config.NightModeConfig{
			TimeoutMinutes:             60,
			ZeroPublishIntervalMinutes: 10,
		},
		Clock: config.ClockConfig{
			Source: config.CLOCK_SOURCE_NONE,
		},
		MQTT: config.MQTTConfig{
			Enable:    true,
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "tigo",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 1000,
			StatsIntervalTicks: 10,
		},
		Port: 8080,
	}
}
