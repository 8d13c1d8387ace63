// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPayloadOrder(t *testing.T) {
	s := Sample{
		Orientation: [4]float32{1, 2, 3, 4},
		Accel:       Vec3{5, 6, 7},
		Gyro:        Vec3{8, 9, 10},
		Gravity:     Vec3{11, 12, 13},
		LinearAccel: Vec3{14, 15, 16},
		Mag:         Vec3{17, 18, 19},
		Euler:       Vec3{20, 21, 22},
		Pressure:    23,
	}

	p := s.Payload()
	for i, v := range p {
		assert.Equal(t, float32(i+1), v, "payload[%d]", i)
	}

	ts := time.Unix(1700000000, 123)
	back := SampleFromPayload(ts, p)
	s.Timestamp = ts
	assert.Equal(t, s, back)
}

func TestVecFrom(t *testing.T) {
	assert.Equal(t, Vec3{1, 2, 3}, VecFrom([]float32{1, 2, 3, 4}))
	assert.Equal(t, Vec3{X: 1}, VecFrom([]float32{1}))
	assert.Equal(t, Vec3{}, VecFrom(nil))
}
