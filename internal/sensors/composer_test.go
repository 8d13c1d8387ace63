// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/mocap_streamer/internal/imu"
)

func publishIMU(t *testing.T, hub *Hub, device string, ts time.Time) {
	t.Helper()
	for _, r := range []Reading{
		reading(device, KindOrientation, ts, 1, 0, 0, 0),
		reading(device, KindAccel, ts, 0, 0, 9.8),
		reading(device, KindGyro, ts, 0.1, 0.2, 0.3),
		reading(device, KindGravity, ts, 0, 0, 9.8),
		reading(device, KindLinearAccel, ts, 0, 0, 0),
		reading(device, KindMag, ts, 20, 0, -40),
		reading(device, KindEuler, ts, 1, 2, 3),
		reading(device, KindPressure, ts, 1013.25),
	} {
		require.NoError(t, hub.Publish(r))
	}
}

func TestComposer_IncompleteUntilEveryChannelReports(t *testing.T) {
	hub := NewHub()
	c := NewIMUComposer(hub, "left")

	_, err := c.Next()
	assert.ErrorIs(t, err, ErrIncompleteSample)

	require.NoError(t, hub.Publish(reading("left", KindOrientation, t0, 1, 0, 0, 0)))
	_, err = c.Next()
	assert.ErrorIs(t, err, ErrIncompleteSample)

	publishIMU(t, hub, "left", t0)
	s, err := c.Next()
	require.NoError(t, err)

	want := imu.Sample{
		Timestamp:   t0,
		Orientation: [4]float32{1, 0, 0, 0},
		Accel:       imu.Vec3{Z: 9.8},
		Gyro:        imu.Vec3{X: 0.1, Y: 0.2, Z: 0.3},
		Gravity:     imu.Vec3{Z: 9.8},
		Mag:         imu.Vec3{X: 20, Z: -40},
		Euler:       imu.Vec3{X: 1, Y: 2, Z: 3},
		Pressure:    1013.25,
	}
	assert.Equal(t, want, s)
}

func TestComposer_NothingNewSinceLastSample(t *testing.T) {
	hub := NewHub()
	c := NewIMUComposer(hub, "left")
	publishIMU(t, hub, "left", t0)

	_, err := c.Next()
	require.NoError(t, err)

	_, err = c.Next()
	assert.ErrorIs(t, err, ErrIncompleteSample)

	require.NoError(t, hub.Publish(reading("left", KindGyro, t0.Add(10*time.Millisecond), 1, 1, 1)))
	s, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Millisecond), s.Timestamp)
	assert.Equal(t, imu.Vec3{X: 1, Y: 1, Z: 1}, s.Gyro)
}

func TestComposer_PeekDoesNotConsume(t *testing.T) {
	hub := NewHub()
	c := NewIMUComposer(hub, "left")
	publishIMU(t, hub, "left", t0)

	first, err := c.Peek()
	require.NoError(t, err)
	again, err := c.Peek()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	c.Commit(first)
	_, err = c.Peek()
	assert.ErrorIs(t, err, ErrIncompleteSample)
	_, err = c.Next()
	assert.ErrorIs(t, err, ErrIncompleteSample)
}

func TestComposer_RegisteredKindsOnly(t *testing.T) {
	hub := NewHub()
	c := NewIMUComposer(hub, "right", KindOrientation, KindAccel)
	assert.Equal(t, "right", c.Device())

	require.NoError(t, hub.Publish(reading("right", KindOrientation, t0, 0, 1, 0, 0)))
	require.NoError(t, hub.Publish(reading("right", KindAccel, t0, 1, 2, 3)))

	s, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, [4]float32{0, 1, 0, 0}, s.Orientation)
	assert.Zero(t, s.Pressure)
	assert.Zero(t, s.Gyro)
}
