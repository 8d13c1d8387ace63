// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/mocap_streamer/internal/env"
	"github.com/relabs-tech/mocap_streamer/internal/imu"
	"github.com/relabs-tech/mocap_streamer/internal/orientation"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

type fakeIMU struct {
	raw imu.Raw
	err error
}

func (f *fakeIMU) ReadRaw() (imu.Raw, error) { return f.raw, f.err }

type fakeEnv struct{ hpa float64 }

func (f fakeEnv) ReadEnv() (env.Sample, error) { return env.Sample{PressureHPa: f.hpa}, nil }

func valuesOf(t *testing.T, rs []Reading, kind Kind) []float32 {
	t.Helper()
	for _, r := range rs {
		if r.Channel.Kind == kind {
			return r.Values
		}
	}
	t.Fatalf("no %s reading", kind)
	return nil
}

func TestIMUConverter_FlatAndStill(t *testing.T) {
	c := newIMUConverter("left", 0, 0)
	rs := c.convert(imu.Raw{Az: 16384}, t0)

	accel := valuesOf(t, rs, KindAccel)
	assert.InDelta(t, standardGravity, accel[2], 1e-4)
	assert.InDelta(t, 0, accel[0], 1e-6)

	assert.Equal(t, accel, valuesOf(t, rs, KindGravity))
	assert.Equal(t, []float32{0, 0, 0}, valuesOf(t, rs, KindLinearAccel))

	q := orientation.FromFloat32([4]float32(valuesOf(t, rs, KindOrientation)))
	assert.InDelta(t, 1, q.W, 1e-6)
	assert.InDelta(t, 0, orientation.GlobalHeading(q), 1e-6)

	for _, r := range rs {
		assert.Equal(t, "left", r.Channel.Device)
		assert.Equal(t, t0, r.Timestamp)
		assert.Len(t, r.Values, r.Channel.Kind.Width())
	}
}

func TestIMUConverter_Ranges(t *testing.T) {
	c := newIMUConverter("left", 3, 3) // ±16g, ±2000°/s
	rs := c.convert(imu.Raw{Ax: 2048, Gz: 164}, t0)

	assert.InDelta(t, standardGravity, valuesOf(t, rs, KindAccel)[0], 1e-4)
	assert.InDelta(t, 10*3.14159265/180, valuesOf(t, rs, KindGyro)[2], 1e-3)
}

func TestIMUConverter_IntegratesYawAndFiltersGravity(t *testing.T) {
	c := newIMUConverter("left", 0, 0)
	c.convert(imu.Raw{Az: 16384}, t0)

	// 90°/s for one second
	rs := c.convert(imu.Raw{Az: 16384, Gz: int16(90 * 131)}, t0.Add(time.Second))
	euler := valuesOf(t, rs, KindEuler)
	assert.InDelta(t, 90, euler[2], 1e-3)

	q := orientation.FromFloat32([4]float32(valuesOf(t, rs, KindOrientation)))
	assert.InDelta(t, 90, orientation.GlobalHeading(q), 1e-3)

	// a sudden X acceleration only leaks into gravity by 1-alpha
	rs = c.convert(imu.Raw{Ax: 16384, Az: 16384}, t0.Add(2*time.Second))
	gravity := valuesOf(t, rs, KindGravity)
	linear := valuesOf(t, rs, KindLinearAccel)
	assert.InDelta(t, (1-gravityAlpha)*standardGravity, gravity[0], 1e-4)
	assert.InDelta(t, gravityAlpha*standardGravity, linear[0], 1e-4)
}

func TestHardwareProducer_Poll(t *testing.T) {
	hub := NewHub()
	left := &fakeIMU{raw: imu.Raw{Source: "left", Az: 16384}}
	right := &fakeIMU{err: errors.New("spi timeout")}

	p := NewHardwareProducer(hub, timeutil.NewMockClock(t0), 10*time.Millisecond, 0, 0,
		HardwareDevice{Name: "left", IMU: left, Env: fakeEnv{hpa: 1001.5}},
		HardwareDevice{Name: "right", IMU: right},
	)
	assert.Equal(t, IMUKinds, p.Kinds("left"))
	assert.NotContains(t, p.Kinds("right"), KindPressure)
	assert.Nil(t, p.Kinds("nobody"))

	p.poll(t0)

	s, err := NewIMUComposer(hub, "left", p.Kinds("left")...).Next()
	require.NoError(t, err)
	assert.Equal(t, float32(1001.5), s.Pressure)

	_, ok := hub.Latest(ChannelID{"right", KindOrientation})
	assert.False(t, ok)
}

func TestHardwareProducer_RunTicksOnClock(t *testing.T) {
	hub := NewHub()
	clock := timeutil.NewMockClock(t0)
	p := NewHardwareProducer(hub, clock, 10*time.Millisecond, 0, 0,
		HardwareDevice{Name: "left", IMU: &fakeIMU{raw: imu.Raw{Az: 16384}}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, time.Second, time.Millisecond)
	clock.Advance(10 * time.Millisecond)

	require.Eventually(t, func() bool {
		r, ok := hub.Latest(ChannelID{"left", KindAccel})
		return ok && r.Timestamp.Equal(t0.Add(10*time.Millisecond))
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
