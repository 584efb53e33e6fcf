package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopwatch_Laps(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))
	sw := NewStopwatch(WithClock(clock))

	sw.Start()
	clock.Advance(5 * time.Millisecond)
	d := sw.Stop()
	assert.Equal(t, 5*time.Millisecond, d)

	sw.Start()
	clock.Advance(7 * time.Millisecond)
	sw.Stop()

	require.Len(t, sw.Durations(), 2)
	assert.Equal(t, 5*time.Millisecond, sw.Durations()[0])
	assert.Equal(t, 7*time.Millisecond, sw.Durations()[1])
}

func TestStopwatch_StopWithoutStart(t *testing.T) {
	sw := NewStopwatch()
	assert.Equal(t, time.Duration(0), sw.Stop())
	assert.Empty(t, sw.Durations())
}

func TestStopwatch_Reset(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	sw := NewStopwatch(WithClock(clock))

	sw.Start()
	clock.Advance(time.Second)
	sw.Stop()
	sw.Reset()

	assert.Empty(t, sw.Durations())
}

func TestMockClock(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)

	assert.Equal(t, start, clock.Now())
	clock.Advance(time.Minute)
	assert.Equal(t, time.Minute, clock.Since(start))
	clock.Sleep(time.Second)
	assert.Equal(t, time.Minute+time.Second, clock.Since(start))
}
