// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/mocap_streamer/internal/orientation"
	"github.com/relabs-tech/mocap_streamer/internal/sensors"
)

// holdStage collects pressure while the wearer holds still. The window is
// fixed from stage entry and never restarts.
type holdStage struct {
	pressures  []float64
	heading    float64
	hasHeading bool
}

func (h *holdStage) observe(r sensors.Reading) {
	switch r.Channel.Kind {
	case sensors.KindPressure:
		if len(r.Values) > 0 {
			h.pressures = append(h.pressures, float64(r.Values[0]))
		}
	case sensors.KindOrientation:
		if q, ok := quaternionOf(r); ok {
			h.heading = orientation.GlobalHeading(q)
			h.hasHeading = true
		}
	}
}

// finish returns the reference pressure and the heading held at the end of
// the stage.
func (h *holdStage) finish() (pressure, heading float64, err error) {
	if len(h.pressures) == 0 || !h.hasHeading {
		return 0, 0, ErrInsufficientSamples
	}
	return stat.Mean(h.pressures, nil), h.heading, nil
}

type signal int

const (
	signalNone signal = iota
	signalStart
	signalStop
)

// forwardStage waits for the wearer to turn away from the held heading and
// stay upright for a full window. Any unstable reading empties the window
// and restarts it.
type forwardStage struct {
	cfg  Config
	held float64

	window      []orientation.Quaternion
	windowStart time.Time

	gravityZ   float64
	hasGravity bool
	signalling bool
}

func newForwardStage(cfg Config, held float64, start time.Time) *forwardStage {
	return &forwardStage{cfg: cfg, held: held, windowStart: start}
}

// observe consumes one reading stamped now. It reports whether the attention
// signal must start or stop, and whether the window is complete.
func (f *forwardStage) observe(r sensors.Reading, now time.Time) (signal, bool) {
	switch r.Channel.Kind {
	case sensors.KindGravity:
		if len(r.Values) >= 3 {
			f.gravityZ = float64(r.Values[2])
			f.hasGravity = true
		}
		return signalNone, false
	case sensors.KindOrientation:
	default:
		return signalNone, false
	}

	q, ok := quaternionOf(r)
	if !ok {
		return signalNone, false
	}

	if f.unstable(orientation.GlobalHeading(q)) {
		f.window = f.window[:0]
		f.windowStart = now
		if !f.signalling {
			f.signalling = true
			return signalStart, false
		}
		return signalNone, false
	}

	f.window = append(f.window, q)
	sig := signalNone
	if f.signalling {
		f.signalling = false
		sig = signalStop
	}
	return sig, now.Sub(f.windowStart) >= f.cfg.Window
}

func (f *forwardStage) unstable(heading float64) bool {
	if !f.hasGravity || f.gravityZ < f.cfg.MinGravityZ {
		return true
	}
	return orientation.AngularDistance(f.held, heading) < f.cfg.MinHeadingDeltaDeg
}

// finish returns the corrected heading of the averaged window, wrapped into
// (-180, 180].
func (f *forwardStage) finish() (float64, error) {
	avg, err := orientation.Average(f.window)
	if err != nil {
		return 0, err
	}
	return orientation.WrapDegrees(orientation.GlobalHeading(avg) + f.cfg.HeadingCorrectionDeg), nil
}

func quaternionOf(r sensors.Reading) (orientation.Quaternion, bool) {
	if len(r.Values) < 4 {
		return orientation.Quaternion{}, false
	}
	return orientation.FromFloat32([4]float32(r.Values[:4])), true
}
