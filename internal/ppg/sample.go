// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ppg

import "time"

// DataFloats is the number of optical channels carried by one PPG sample.
const DataFloats = 16

// Sample is one photoplethysmography reading.
type Sample struct {
	Timestamp time.Time           `json:"timestamp"`
	Data      [DataFloats]float32 `json:"data"`
}
