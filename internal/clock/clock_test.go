package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before), "RealClock.Now should not be before the surrounding calls")
	assert.False(t, got.After(after), "RealClock.Now should not be after the surrounding calls")
}

func TestMockClockNow(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(fixed)

	assert.Equal(t, fixed, c.Now())
	assert.Equal(t, fixed.UnixMilli(), c.NowUnixMilli())
}

func TestMockClockSet(t *testing.T) {
	c := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	later := time.Date(2025, 6, 1, 13, 30, 0, 0, time.UTC)

	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Advance(15 * time.Second)
	assert.Equal(t, start.Add(15*time.Second), c.Now())

	c.Advance(-5 * time.Second)
	assert.Equal(t, start.Add(10*time.Second), c.Now())
}
