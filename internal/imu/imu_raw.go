// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Raw represents a single raw accelerometer + gyroscope reading in sensor
// counts, as read from an MPU9250 class device.
type Raw struct {
	Source string `json:"source"` // "left" or "right"

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// RawReader is anything that can provide raw IMU readings.
type RawReader interface {
	ReadRaw() (Raw, error)
}
