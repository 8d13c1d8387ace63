// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package imu holds the inertial sample types shared by the sample
// producers, the frame encoder and calibration.
package imu

import "time"

// DataFloats is the number of float32 data values one Sample carries on the
// wire.
const DataFloats = 23

// Vec3 is a three axis reading.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Sample is one merged inertial snapshot of a single device. It is
// immutable once composed.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`

	Orientation [4]float32 `json:"orientation"` // w, x, y, z
	Accel       Vec3       `json:"accel"`        // m/s²
	Gyro        Vec3       `json:"gyro"`         // rad/s
	Gravity     Vec3       `json:"gravity"`      // m/s²
	LinearAccel Vec3       `json:"linear_accel"` // m/s², gravity removed
	Mag         Vec3       `json:"mag"`          // µT
	Euler       Vec3       `json:"euler"`        // roll, pitch, yaw in degrees
	Pressure    float32    `json:"pressure"`     // hPa
}

// Payload returns the data values in wire order: orientation, accel, gyro,
// gravity, linear accel, mag, euler, pressure.
func (s Sample) Payload() [DataFloats]float32 {
	var p [DataFloats]float32
	copy(p[0:4], s.Orientation[:])
	putVec(p[4:7], s.Accel)
	putVec(p[7:10], s.Gyro)
	putVec(p[10:13], s.Gravity)
	putVec(p[13:16], s.LinearAccel)
	putVec(p[16:19], s.Mag)
	putVec(p[19:22], s.Euler)
	p[22] = s.Pressure
	return p
}

// SampleFromPayload is the inverse of Payload.
func SampleFromPayload(ts time.Time, p [DataFloats]float32) Sample {
	s := Sample{Timestamp: ts}
	copy(s.Orientation[:], p[0:4])
	s.Accel = vecFrom(p[4:7])
	s.Gyro = vecFrom(p[7:10])
	s.Gravity = vecFrom(p[10:13])
	s.LinearAccel = vecFrom(p[13:16])
	s.Mag = vecFrom(p[16:19])
	s.Euler = vecFrom(p[19:22])
	s.Pressure = p[22]
	return s
}

func putVec(dst []float32, v Vec3) {
	dst[0], dst[1], dst[2] = v.X, v.Y, v.Z
}

func vecFrom(src []float32) Vec3 {
	return Vec3{X: src[0], Y: src[1], Z: src[2]}
}

// VecFrom builds a Vec3 from the first three values of v. Missing values are
// left at zero.
func VecFrom(v []float32) Vec3 {
	var out [3]float32
	copy(out[:], v)
	return Vec3{X: out[0], Y: out[1], Z: out[2]}
}
