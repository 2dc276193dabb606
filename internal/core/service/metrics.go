package service

import (
	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/pkg/cca"
)

// Scaling converts raw telemetry counts into engineering units.
// value = raw * Scale + Offset
type Scaling struct {
	VinScale         float64
	VinOffset        float64
	VoutScale        float64
	VoutOffset       float64
	IinScale         float64
	IinOffset        float64
	TempScale        float64
	TempOffset       float64
	PowerCalibration float64
}

func DefaultScaling() Scaling {
	return Scaling{
		VinScale:         0.05,
		VoutScale:        0.10,
		IinScale:         0.005,
		TempScale:        0.1,
		PowerCalibration: 1.0,
	}
}

type MetricsDeriver struct {
	Scaling            Scaling
	DefaultPowerFactor float64
}

func NewMetricsDeriver(scaling Scaling, defaultPowerFactor float64) MetricsDeriver {
	if scaling.PowerCalibration == 0 {
		scaling.PowerCalibration = 1.0
	}
	if defaultPowerFactor <= 0 {
		defaultPowerFactor = 1.0
	}
	return MetricsDeriver{Scaling: scaling, DefaultPowerFactor: defaultPowerFactor}
}

// Derive computes readings and ratios from a single telemetry block.
// PeakPowerW is left at zero; the registry keeps the running maximum.
func (d MetricsDeriver) Derive(t cca.Telemetry, profile domain.DeviceProfile) (domain.Readings, domain.Metrics) {
	s := d.Scaling

	r := domain.Readings{
		VinV:         float64(t.VinRaw)*s.VinScale + s.VinOffset,
		VoutV:        float64(t.VoutRaw)*s.VoutScale + s.VoutOffset,
		IinA:         float64(t.IinRaw)*s.IinScale + s.IinOffset,
		TemperatureC: float64(t.TempRaw)*s.TempScale + s.TempOffset,
		DutyCycle:    float64(t.PWM) / 255 * 100,
	}
	r.InputPowerW = r.VinV * r.IinA
	rawOut := r.VoutV * r.IinA
	// Offsets can push the product below zero; energy must never run backwards.
	r.PowerW = max(rawOut*s.PowerCalibration, 0)

	var m domain.Metrics
	if r.InputPowerW > 0 {
		m.Efficiency = domain.Float(rawOut / r.InputPowerW * 100)
		pf := profile.PowerFactor
		if pf <= 0 {
			pf = d.DefaultPowerFactor
		}
		m.PowerFactor = domain.Float(pf)
	}
	if profile.RatedPowerW > 0 {
		m.LoadFactor = domain.Float(r.PowerW / profile.RatedPowerW)
	} else {
		m.LoadFactor = domain.Float(float64(t.PWM) / 255)
	}
	return r, m
}
