package service

import (
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"go.uber.org/zap"
)

const DefaultNightModeTimeout = 60 * time.Minute

type NightModeDetector struct {
	Timeout    time.Duration
	ThresholdW float64
	state      domain.NightModeState
	logger     *zap.Logger
}

// NewNightModeDetector starts in Day with the inactivity timer anchored at now.
func NewNightModeDetector(timeout time.Duration, thresholdW float64, now time.Time, logger *zap.Logger) *NightModeDetector {
	if timeout <= 0 {
		timeout = DefaultNightModeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NightModeDetector{
		Timeout:    timeout,
		ThresholdW: thresholdW,
		state: domain.NightModeState{
			Mode:         domain.NIGHT_MODE_DAY,
			LastActiveAt: now,
			Since:        now,
		},
		logger: logger,
	}
}

// Evaluate advances the state machine. freshActivity is true when the tick
// committed at least one valid reading with non-zero power.
func (d *NightModeDetector) Evaluate(powerSum float64, freshActivity bool, now time.Time) (domain.NightModeState, bool) {
	changed := false
	if freshActivity || powerSum > d.ThresholdW {
		d.state.LastActiveAt = now
		if d.state.IsNight() {
			d.state.Mode = domain.NIGHT_MODE_DAY
			d.state.Since = now
			changed = true
			d.logger.Info("night_mode: activity detected, leaving night mode")
		}
	} else if !d.state.IsNight() && now.Sub(d.state.LastActiveAt) >= d.Timeout {
		d.state.Mode = domain.NIGHT_MODE_NIGHT
		d.state.Since = now
		changed = true
		d.logger.Info("night_mode: no power, entering night mode", zap.Duration("idle", now.Sub(d.state.LastActiveAt)))
	}
	return d.state, changed
}

func (d *NightModeDetector) State() domain.NightModeState {
	return d.state
}
