// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"sync"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/imu"
)

// IMUKinds are the channels of a full inertial device, in wire order.
var IMUKinds = []Kind{
	KindOrientation,
	KindAccel,
	KindGyro,
	KindGravity,
	KindLinearAccel,
	KindMag,
	KindEuler,
	KindPressure,
}

// Composer merges the latest reading of every registered channel of one
// device into an imu.Sample.
type Composer struct {
	src    Source
	device string
	kinds  []Kind

	mu   sync.Mutex
	last time.Time
}

// NewIMUComposer returns a composer for device. kinds lists the channels that
// must have reported before a sample is complete; it defaults to IMUKinds.
// Unregistered channels stay zero in the composed sample.
func NewIMUComposer(src Source, device string, kinds ...Kind) *Composer {
	if len(kinds) == 0 {
		kinds = IMUKinds
	}
	return &Composer{src: src, device: device, kinds: kinds}
}

// Device returns the device the composer reads.
func (c *Composer) Device() string { return c.device }

// Next returns a merged snapshot and marks it sent. It returns
// ErrIncompleteSample when a registered channel has never reported or when
// nothing arrived since the previous snapshot. The sample timestamp is the
// newest reading's.
func (c *Composer) Next() (imu.Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.peekLocked()
	if err != nil {
		return imu.Sample{}, err
	}
	c.last = s.Timestamp
	return s, nil
}

// Peek is Next without marking the snapshot sent. Pair it with Commit when a
// frame needs several composers to be ready at once.
func (c *Composer) Peek() (imu.Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peekLocked()
}

// Commit marks s, as returned by Peek, sent.
func (c *Composer) Commit(s imu.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Timestamp.After(c.last) {
		c.last = s.Timestamp
	}
}

func (c *Composer) peekLocked() (imu.Sample, error) {
	var s imu.Sample
	var newest time.Time
	for _, kind := range c.kinds {
		r, ok := c.src.Latest(ChannelID{Device: c.device, Kind: kind})
		if !ok {
			return imu.Sample{}, ErrIncompleteSample
		}
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
		apply(&s, kind, r.Values)
	}

	if !newest.After(c.last) {
		return imu.Sample{}, ErrIncompleteSample
	}
	s.Timestamp = newest
	return s, nil
}

func apply(s *imu.Sample, kind Kind, v []float32) {
	switch kind {
	case KindOrientation:
		copy(s.Orientation[:], v)
	case KindAccel:
		s.Accel = imu.VecFrom(v)
	case KindGyro:
		s.Gyro = imu.VecFrom(v)
	case KindGravity:
		s.Gravity = imu.VecFrom(v)
	case KindLinearAccel:
		s.LinearAccel = imu.VecFrom(v)
	case KindMag:
		s.Mag = imu.VecFrom(v)
	case KindEuler:
		s.Euler = imu.VecFrom(v)
	case KindPressure:
		if len(v) > 0 {
			s.Pressure = v[0]
		}
	}
}
