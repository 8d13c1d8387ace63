// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
)

// Pose is the Euler representation of orientation, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is set to 0; heading comes from the orientation quaternion instead.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
		Yaw:   0,
	}
}

// Quaternion converts the pose to a unit quaternion (Z-Y-X rotation order).
func (p Pose) Quaternion() Quaternion {
	return FromEuler(p.Roll, p.Pitch, p.Yaw)
}

// FromEuler builds a unit quaternion from roll, pitch and yaw in degrees,
// applied in Z-Y-X order.
func FromEuler(rollDeg, pitchDeg, yawDeg float64) Quaternion {
	cr, sr := math.Cos(radians(rollDeg)/2), math.Sin(radians(rollDeg)/2)
	cp, sp := math.Cos(radians(pitchDeg)/2), math.Sin(radians(pitchDeg)/2)
	cy, sy := math.Cos(radians(yawDeg)/2), math.Sin(radians(yawDeg)/2)

	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// FromYaw builds a unit quaternion for a pure rotation about the vertical
// axis.
func FromYaw(yawDeg float64) Quaternion {
	half := radians(yawDeg) / 2
	return Quaternion{W: math.Cos(half), Z: math.Sin(half)}
}

// Pose converts the quaternion to roll, pitch and yaw in degrees.
func (q Quaternion) Pose() Pose {
	q = q.Normalize()

	sinrCosp := 2 * (q.W*q.X + q.Y*q.Z)
	cosrCosp := 1 - 2*(q.X*q.X+q.Y*q.Y)

	sinp := 2 * (q.W*q.Y - q.Z*q.X)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)

	return Pose{
		Roll:  degrees(math.Atan2(sinrCosp, cosrCosp)),
		Pitch: degrees(pitch),
		Yaw:   degrees(math.Atan2(sinyCosp, cosyCosp)),
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }
func degrees(rad float64) float64 { return rad * 180.0 / math.Pi }
