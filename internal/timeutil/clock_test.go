// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock_TimerFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	timer := clock.NewTimer(3 * time.Second)
	assert.Equal(t, 1, clock.PendingTimers())

	clock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	clock.Advance(time.Second)
	select {
	case got := <-timer.C():
		assert.Equal(t, start.Add(3*time.Second), got)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, clock.PendingTimers())
}

func TestMockClock_StoppedTimerNeverFires(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(time.Second)

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clock.Advance(time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	clock := NewMockClock(start)

	clock.Sleep(250 * time.Millisecond)
	clock.Sleep(750 * time.Millisecond)

	assert.Equal(t, []time.Duration{250 * time.Millisecond, 750 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, time.Second, clock.Since(start))
}

func TestRealClock_Timer(t *testing.T) {
	var clock Clock = RealClock{}
	timer := clock.NewTimer(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}
