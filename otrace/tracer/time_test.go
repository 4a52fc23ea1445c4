// Unless explicitly stated otherwise all files in this repository are licensed
// under the MIT License.
// This product includes software developed for the otrace project.
// Copyright 2025 otrace-go Authors.

package tracer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonicClock(t *testing.T) {
	setClock(ClockMonotonic)
	prev := nowUS()
	for i := 0; i < 1000; i++ {
		now := nowUS()
		assert.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestClockAdvances(t *testing.T) {
	setClock(ClockMonotonic)
	t0 := nowUS()
	time.Sleep(2 * time.Millisecond)
	t1 := nowUS()
	assert.GreaterOrEqual(t, t1-t0, uint64(1000))
	assert.Less(t, t1-t0, uint64(60_000_000))
}

func TestWallClock(t *testing.T) {
	setClock(ClockWall)
	defer setClock(ClockMonotonic)
	w := nowUS()
	m := uint64(time.Since(monoEpoch) / time.Microsecond)
	// the backends share an epoch; absent a wall-clock jump they agree
	// within a generous bound
	diff := int64(w) - int64(m)
	if diff < 0 {
		diff = -diff
	}
	assert.Less(t, diff, int64(5_000_000))
}

func TestTSCClockFallsBackOrTicks(t *testing.T) {
	setClock(ClockTSC)
	defer setClock(ClockMonotonic)
	t0 := nowUS()
	time.Sleep(2 * time.Millisecond)
	t1 := nowUS()
	// either a calibrated TSC or the monotonic fallback; both must tick
	assert.Greater(t, t1, t0)
}

func TestNowMicrosMatchesBackend(t *testing.T) {
	setClock(ClockMonotonic)
	a := NowMicros()
	b := nowUS()
	assert.LessOrEqual(t, a, b)
}
