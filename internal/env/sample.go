// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package env

// Sample represents a single environmental measurement (BMP).
type Sample struct {
	Source string `json:"source"` // "left" or "right"

	Temperature float64 `json:"temp_c"`       // °C
	PressureHPa float64 `json:"pressure_hpa"` // hPa (1 hPa = 100 Pa)
}
