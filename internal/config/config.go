package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/port"

	"go.uber.org/zap/zapcore"
)

const (
	CLOCK_SOURCE_SYSTEM = "system"
	CLOCK_SOURCE_NONE   = "none"
)

type Config struct {
	LogLevel        zapcore.Level
	Serial          SerialConfig    `mapstructure:"serial"`
	Tigo            TigoConfig      `mapstructure:"tigo"`
	Validator       ValidatorConfig `mapstructure:"validator"`
	Scaling         ScalingConfig   `mapstructure:"scaling"`
	NightMode       NightModeConfig `mapstructure:"night_mode"`
	Clock           ClockConfig     `mapstructure:"clock"`
	ResetAtMidnight bool            `mapstructure:"reset_at_midnight"`
	MQTT            MQTTConfig      `mapstructure:"mqtt"`
	MonitorConfig   MonitorConfig   `mapstructure:"monitor"`
	Store           StoreConfig     `mapstructure:"store"`
	Influx          InfluxConfig    `mapstructure:"influx"`
	Metrics         MetricsConfig   `mapstructure:"metrics"`
	Server          ServerConfig    `mapstructure:"server"`
	Port            uint            `mapstructure:"port"`
	HttpLog         bool            `mapstructure:"http_log"`
}

type SerialConfig struct {
	Device            string
	BaudRate          int    `mapstructure:"baud_rate"`
	ReadTimeoutMillis uint32 `mapstructure:"read_timeout_millis"`
	ReadMaxBytes      int    `mapstructure:"read_max_bytes"`
	FlowControl       bool   `mapstructure:"flow_control"`
	GatewayAddress    uint16 `mapstructure:"gateway_address"`
	CommandGapMillis  uint32 `mapstructure:"command_gap_millis"`
}

type TigoConfig struct {
	NumberOfDevices  int            `mapstructure:"number_of_devices"`
	Devices          []DeviceConfig `mapstructure:"devices"`
	StalenessMinutes uint32         `mapstructure:"staleness_minutes"`
	HistoryDays      int            `mapstructure:"history_days"`
}

type DeviceConfig struct {
	Slot        uint8
	Address     string
	Name        string
	Inverter    string
	MPPT        string  `mapstructure:"mppt"`
	RatedPowerW float64 `mapstructure:"rated_power_w"`
	PowerFactor float64 `mapstructure:"power_factor"`
}

type ValidatorConfig struct {
	Header        string
	SlotMin       uint8 `mapstructure:"slot_min"`
	SlotMax       uint8 `mapstructure:"slot_max"`
	MaxResyncScan int   `mapstructure:"max_resync_scan"`
	MaxBuffer     int   `mapstructure:"max_buffer"`
}

type ScalingConfig struct {
	VinScale           float64 `mapstructure:"vin_scale"`
	VinOffset          float64 `mapstructure:"vin_offset"`
	VoutScale          float64 `mapstructure:"vout_scale"`
	VoutOffset         float64 `mapstructure:"vout_offset"`
	IinScale           float64 `mapstructure:"iin_scale"`
	IinOffset          float64 `mapstructure:"iin_offset"`
	TempScale          float64 `mapstructure:"temp_scale"`
	TempOffset         float64 `mapstructure:"temp_offset"`
	PowerCalibration   float64 `mapstructure:"power_calibration"`
	DefaultPowerFactor float64 `mapstructure:"default_power_factor"`
}

type NightModeConfig struct {
	TimeoutMinutes             uint32  `mapstructure:"timeout_minutes"`
	ZeroPublishIntervalMinutes uint32  `mapstructure:"zero_publish_interval_minutes"`
	ThresholdW                 float64 `mapstructure:"threshold_w"`
}

type ClockConfig struct {
	Source       string
	Timezone     string
	MinValidYear int `mapstructure:"min_valid_year"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	StatsIntervalTicks uint32 `mapstructure:"stats_interval_ticks"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type StoreConfig struct {
	Path     string
	SaveCron string `mapstructure:"save_cron"`
}

type InfluxConfig struct {
	Enable bool
	URL    string `mapstructure:"url"`
	Token  string
	Org    string
	Bucket string
}

type MetricsConfig struct {
	Enable bool
}

type ServerConfig struct {
	Username string
	Password string
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate reports configuration errors that must stop the bridge before
// any actor starts.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Tigo.NumberOfDevices < 1 {
		errs = append(errs, errors.New("config param tigo.number_of_devices should be >= 1"))
	}
	if len(cfg.Tigo.Devices) > cfg.Tigo.NumberOfDevices && cfg.Tigo.NumberOfDevices > 0 {
		errs = append(errs, fmt.Errorf("config param tigo.devices lists %d devices but number_of_devices is %d", len(cfg.Tigo.Devices), cfg.Tigo.NumberOfDevices))
	}
	slots := map[uint8]bool{}
	addresses := map[string]bool{}
	for _, d := range cfg.Tigo.Devices {
		if slots[d.Slot] {
			errs = append(errs, fmt.Errorf("config param tigo.devices: slot %d is mapped twice", d.Slot))
		}
		slots[d.Slot] = true
		if d.Address != "" {
			if addresses[d.Address] {
				errs = append(errs, fmt.Errorf("config param tigo.devices: address %s is mapped twice", d.Address))
			}
			addresses[d.Address] = true
		}
		if d.Slot < cfg.Validator.SlotMin || d.Slot > cfg.Validator.SlotMax {
			errs = append(errs, fmt.Errorf("config param tigo.devices: slot %d is outside validator range", d.Slot))
		}
	}
	if cfg.Validator.SlotMin > cfg.Validator.SlotMax {
		errs = append(errs, errors.New("config param validator.slot_min must be <= validator.slot_max"))
	}
	if _, err := cfg.Validator.HeaderBytes(); err != nil {
		errs = append(errs, fmt.Errorf("config param validator.header: %w", err))
	}
	if cfg.Scaling.PowerCalibration < 0 {
		errs = append(errs, errors.New("config param scaling.power_calibration must be >= 0"))
	}
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		errs = append(errs, errors.New("config param monitor.poll_interval_millis should be >= 1000"))
	}
	if cfg.ResetAtMidnight && cfg.Clock.Source == CLOCK_SOURCE_NONE {
		errs = append(errs, errors.New("config param reset_at_midnight requires a clock source"))
	}
	if _, err := cfg.Clock.Build(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Influx.Enable && (cfg.Influx.URL == "" || cfg.Influx.Bucket == "") {
		errs = append(errs, errors.New("config params influx.url and influx.bucket are required when influx is enabled"))
	}

	return errors.Join(errs...)
}

func (v ValidatorConfig) HeaderBytes() ([]byte, error) {
	h := strings.ReplaceAll(strings.TrimSpace(v.Header), " ", "")
	if h == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, err
	}
	if len(b) > 2 {
		return nil, errors.New("header can cover at most the two leading bytes")
	}
	return b, nil
}

func (t TigoConfig) Profiles() []domain.DeviceProfile {
	profiles := make([]domain.DeviceProfile, 0, len(t.Devices))
	for _, d := range t.Devices {
		profiles = append(profiles, domain.DeviceProfile{
			Address:     d.Address,
			Name:        d.Name,
			Slot:        d.Slot,
			Inverter:    d.Inverter,
			MPPT:        d.MPPT,
			RatedPowerW: d.RatedPowerW,
			PowerFactor: d.PowerFactor,
		})
	}
	return profiles
}

// Build returns the clock described by the config.
func (c ClockConfig) Build() (port.Clock, error) {
	switch c.Source {
	case CLOCK_SOURCE_NONE:
		return port.NoClock{}, nil
	case "", CLOCK_SOURCE_SYSTEM:
	default:
		return nil, fmt.Errorf("config param clock.source: unknown source %q", c.Source)
	}

	clock := port.SystemClock{}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("config param clock.timezone: %w", err)
		}
		clock.Location = loc
	}
	if c.MinValidYear > 0 {
		clock.MinValid = time.Date(c.MinValidYear, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return clock, nil
}
