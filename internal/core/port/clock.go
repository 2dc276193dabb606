package port

import (
	"errors"
	"time"
)

var ErrClockUnavailable = errors.New("clock unavailable")

// Clock supplies wall-clock time for calendar decisions. Implementations
// return ErrClockUnavailable until they hold a trustworthy time.
type Clock interface {
	Now() (time.Time, error)
}

// SystemClock reads the host clock in a fixed location.
type SystemClock struct {
	Location *time.Location
	// MinValid rejects times before it, for hosts that boot with an unset RTC.
	MinValid time.Time
}

func (c SystemClock) Now() (time.Time, error) {
	now := time.Now()
	if !c.MinValid.IsZero() && now.Before(c.MinValid) {
		return time.Time{}, ErrClockUnavailable
	}
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return now, nil
}

// NoClock never has a time.
type NoClock struct{}

func (NoClock) Now() (time.Time, error) {
	return time.Time{}, ErrClockUnavailable
}

var _ Clock = SystemClock{}
var _ Clock = NoClock{}
