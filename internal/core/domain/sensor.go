package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE           = "bridge"
	SENSOR_ID_TOTAL_POWER            = "total_power"
	SENSOR_ID_TOTAL_ENERGY           = "total_energy"
	SENSOR_ID_ENERGY_YESTERDAY       = "energy_yesterday"
	SENSOR_ID_DEVICE_COUNT           = "device_count"
	SENSOR_ID_ACTIVE_DEVICE_COUNT    = "active_device_count"
	SENSOR_ID_INVALID_CHECKSUM_COUNT = "invalid_checksum_count"
	SENSOR_ID_MISSED_FRAME_COUNT     = "missed_frame_count"
	SENSOR_ID_NIGHT_MODE             = "night_mode"
	BUTTON_ID_RESET_NODE_TABLE       = COMMAND_RESET_NODE_TABLE
	BUTTON_ID_RESET_ENERGY           = COMMAND_RESET_ENERGY
	BUTTON_ID_RESET_PEAK_POWER       = COMMAND_RESET_PEAK_POWER
	BUTTON_ID_DEVICE_DISCOVERY       = COMMAND_REQUEST_DEVICE_DISCOVERY
	BUTTON_ID_GATEWAY_VERSION        = COMMAND_REQUEST_GATEWAY_VERSION
	STATE_CLASS_MEASUREMENT          = "measurement"
	STATE_CLASS_TOTAL                = "total"
	STATE_CLASS_TOTAL_INCREASING     = "total_increasing"
	DEVICE_CLASS_CURRENT             = "current"
	DEVICE_CLASS_ENERGY              = "energy"
	DEVICE_CLASS_POWER               = "power"
	DEVICE_CLASS_POWER_FACTOR        = "power_factor"
	DEVICE_CLASS_TEMPERATURE         = "temperature"
	DEVICE_CLASS_VOLTAGE             = "voltage"
	DEVICE_CLASS_CONNECTIVITY        = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC          = "diagnostic"
	ENTITY_CLASS_CONFIG              = "config"
	SENSOR_TYPE_SENSOR               = "sensor"
	SENSOR_TYPE_BINARY               = "binary_sensor"
)

var idSanitizer = regexp.MustCompile("[^a-z0-9_]+")

// SanitizeId turns an arbitrary address into a topic and entity safe id.
func SanitizeId(s string) string {
	return strings.Trim(idSanitizer.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// DeviceSensorId is the sensor id of one metric of one optimizer.
func DeviceSensorId(address, kind string) string {
	return fmt.Sprintf("%s_%s", SanitizeId(address), kind)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("tigo_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Tigo2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Tigo %s", md5HashShort(baseTopic)),
	}
}

func OptimizerDevice(profile DeviceProfile, bridge Device) Device {
	name := profile.Name
	if name == "" {
		name = profile.Address
	}
	return Device{
		Id:           fmt.Sprintf("tigo_ts4_%s", md5HashShort(profile.Address)),
		Manufacturer: "Tigo",
		Model:        "TS4",
		Name:         name,
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func AggregateSensors(bridgeDevice Device) []GenericSensor {

	dev := IdDevice(bridgeDevice)
	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            dev,
		Id:                SENSOR_ID_TOTAL_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:solar-power",
		UniqueId:          uniqueId(dev.Id, SENSOR_ID_TOTAL_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            dev,
		Id:                SENSOR_ID_TOTAL_ENERGY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy today",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		Precision:         3,
		UniqueId:          uniqueId(dev.Id, SENSOR_ID_TOTAL_ENERGY),
	})

	sensors = append(sensors, GenericSensor{
		Device:            dev,
		Id:                SENSOR_ID_ENERGY_YESTERDAY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy yesterday",
		StateClass:        STATE_CLASS_TOTAL,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		Precision:         3,
		UniqueId:          uniqueId(dev.Id, SENSOR_ID_ENERGY_YESTERDAY),
	})

	sensors = append(sensors, GenericSensor{
		Device:     dev,
		Id:         SENSOR_ID_DEVICE_COUNT,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Device count",
		StateClass: STATE_CLASS_MEASUREMENT,
		Icon:       "mdi:counter",
		UniqueId:   uniqueId(dev.Id, SENSOR_ID_DEVICE_COUNT),
	})

	sensors = append(sensors, GenericSensor{
		Device:     dev,
		Id:         SENSOR_ID_ACTIVE_DEVICE_COUNT,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Active device count",
		StateClass: STATE_CLASS_MEASUREMENT,
		Icon:       "mdi:counter",
		UniqueId:   uniqueId(dev.Id, SENSOR_ID_ACTIVE_DEVICE_COUNT),
	})

	sensors = append(sensors, GenericSensor{
		Device:         dev,
		Id:             SENSOR_ID_INVALID_CHECKSUM_COUNT,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Invalid checksum count",
		StateClass:     STATE_CLASS_TOTAL_INCREASING,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:alert-circle-outline",
		UniqueId:       uniqueId(dev.Id, SENSOR_ID_INVALID_CHECKSUM_COUNT),
	})

	sensors = append(sensors, GenericSensor{
		Device:         dev,
		Id:             SENSOR_ID_MISSED_FRAME_COUNT,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Missed frame count",
		StateClass:     STATE_CLASS_TOTAL_INCREASING,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:alert-outline",
		UniqueId:       uniqueId(dev.Id, SENSOR_ID_MISSED_FRAME_COUNT),
	})

	sensors = append(sensors, GenericSensor{
		Device:     dev,
		Id:         SENSOR_ID_NIGHT_MODE,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Night mode",
		Icon:       "mdi:weather-night",
		UniqueId:   uniqueId(dev.Id, SENSOR_ID_NIGHT_MODE),
	})

	return sensors
}

func BridgeButtons(bridgeDevice Device) []GenericButton {

	dev := IdDevice(bridgeDevice)
	var buttons []GenericButton

	buttons = append(buttons, GenericButton{
		Device:         dev,
		Id:             BUTTON_ID_RESET_NODE_TABLE,
		Name:           "Reset node table",
		Icon:           "mdi:table-refresh",
		EntityCategory: ENTITY_CLASS_CONFIG,
		UniqueId:       uniqueId(dev.Id, BUTTON_ID_RESET_NODE_TABLE),
	})
	buttons = append(buttons, GenericButton{
		Device:         dev,
		Id:             BUTTON_ID_RESET_ENERGY,
		Name:           "Reset energy",
		Icon:           "mdi:lightning-bolt-outline",
		EntityCategory: ENTITY_CLASS_CONFIG,
		UniqueId:       uniqueId(dev.Id, BUTTON_ID_RESET_ENERGY),
	})
	buttons = append(buttons, GenericButton{
		Device:         dev,
		Id:             BUTTON_ID_RESET_PEAK_POWER,
		Name:           "Reset peak power",
		Icon:           "mdi:chart-bell-curve",
		EntityCategory: ENTITY_CLASS_CONFIG,
		UniqueId:       uniqueId(dev.Id, BUTTON_ID_RESET_PEAK_POWER),
	})
	buttons = append(buttons, GenericButton{
		Device:         dev,
		Id:             BUTTON_ID_DEVICE_DISCOVERY,
		Name:           "Request device discovery",
		Icon:           "mdi:magnify-scan",
		EntityCategory: ENTITY_CLASS_CONFIG,
		UniqueId:       uniqueId(dev.Id, BUTTON_ID_DEVICE_DISCOVERY),
	})
	buttons = append(buttons, GenericButton{
		Device:         dev,
		Id:             BUTTON_ID_GATEWAY_VERSION,
		Name:           "Request gateway version",
		Icon:           "mdi:information-outline",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(dev.Id, BUTTON_ID_GATEWAY_VERSION),
	})

	return buttons
}

func UniqueId(baseId, id string) string {
	return uniqueId(baseId, id)
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
