package service

import (
	"errors"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// MidnightResetScheduler fires once whenever the clock reports a calendar
// day different from the last one it saw.
type MidnightResetScheduler struct {
	Enabled bool
	day     domain.DayKey
	logger  *zap.Logger
}

func NewMidnightResetScheduler(enabled bool, logger *zap.Logger) *MidnightResetScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MidnightResetScheduler{Enabled: enabled, logger: logger}
}

// Check returns fired=true exactly once per day boundary, along with the day
// that just ended. An unavailable clock is not an error for the caller.
func (m *MidnightResetScheduler) Check(clock port.Clock) (bool, domain.DayKey, error) {
	if !m.Enabled || clock == nil {
		return false, 0, nil
	}
	now, err := clock.Now()
	if err != nil {
		if errors.Is(err, port.ErrClockUnavailable) {
			return false, 0, nil
		}
		return false, 0, err
	}
	today := domain.DayKeyOf(now)
	if m.day == 0 {
		m.day = today
		return false, 0, nil
	}
	if today == m.day {
		return false, 0, nil
	}
	prev := m.day
	m.day = today
	m.logger.Info("midnight: day changed", zap.Int("previous", int(prev)), zap.Int("today", int(today)))
	return true, prev, nil
}

// Day is the calendar day last observed, zero before the first check.
func (m *MidnightResetScheduler) Day() domain.DayKey {
	return m.day
}

// Restore seeds the observed day, typically from persisted energy state.
func (m *MidnightResetScheduler) Restore(day domain.DayKey) {
	m.day = day
}
