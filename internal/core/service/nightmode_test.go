package service

import (
	"testing"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestNightModeTransitions(t *testing.T) {

	assert := assert.New(t)

	d := NewNightModeDetector(60*time.Minute, 0, t0, nil)
	assert.Equal(domain.NIGHT_MODE_DAY, d.State().Mode, "starts optimistic")

	s, changed := d.Evaluate(0, false, t0.Add(59*time.Minute))
	assert.False(changed)
	assert.False(s.IsNight(), "timeout not reached yet")

	s, changed = d.Evaluate(0, false, t0.Add(60*time.Minute))
	assert.True(changed)
	assert.True(s.IsNight())
	assert.Equal(t0.Add(60*time.Minute), s.Since)

	_, changed = d.Evaluate(0, false, t0.Add(3*time.Hour))
	assert.False(changed, "stays in night")

	s, changed = d.Evaluate(0, true, t0.Add(3*time.Hour+30*time.Second))
	assert.True(changed, "one non-zero reading wakes it up")
	assert.False(s.IsNight())
	assert.Equal(t0.Add(3*time.Hour+30*time.Second), s.LastActiveAt)
}

func TestNightModeActivityResetsTimer(t *testing.T) {

	assert := assert.New(t)

	d := NewNightModeDetector(10*time.Minute, 1, t0, nil)

	d.Evaluate(250, false, t0.Add(9*time.Minute))
	s, changed := d.Evaluate(0.5, false, t0.Add(15*time.Minute))
	assert.False(changed, "power above threshold restarted the timer")
	assert.False(s.IsNight())

	s, changed = d.Evaluate(0.5, false, t0.Add(19*time.Minute))
	assert.True(changed, "near zero counts as zero")
	assert.True(s.IsNight())
}

func TestNightModeDefaultTimeout(t *testing.T) {
	d := NewNightModeDetector(0, 0, t0, nil)
	assert.Equal(t, DefaultNightModeTimeout, d.Timeout)
}
