// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"encoding/binary"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/orientation"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
)

// MockProducer generates smooth synthetic motion, PPG and a test tone for
// bench runs without a wearable.
type MockProducer struct {
	sink       Sink
	clock      timeutil.Clock
	devices    []string
	interval   time.Duration
	audioChunk int

	start time.Time
	phase float64 // tone phase in radians
}

const (
	mockPressureHPa = 1013.25
	mockSampleRate  = 16000 // Hz, mono PCM16
	mockToneHz      = 440
)

// NewMockProducer publishes every IMU channel and PPG for each device, and
// audio for the first one, once per interval.
func NewMockProducer(sink Sink, clock timeutil.Clock, interval time.Duration, audioChunk int, devices ...string) *MockProducer {
	return &MockProducer{
		sink:       sink,
		clock:      clock,
		devices:    devices,
		interval:   interval,
		audioChunk: audioChunk,
		start:      clock.Now(),
	}
}

// Run publishes until ctx is cancelled.
func (m *MockProducer) Run(ctx context.Context) error {
	log.Printf("mock: generating samples for %v every %v", m.devices, m.interval)
	cadence := timeutil.NewCadence(m.clock, m.interval)
	for {
		if err := cadence.Wait(ctx); err != nil {
			return err
		}
		m.tick(m.clock.Now())
	}
}

func (m *MockProducer) tick(now time.Time) {
	elapsed := now.Sub(m.start).Seconds()

	for i, device := range m.devices {
		offset := float64(i) * 0.5
		pose := orientation.Pose{
			Roll:  2 * math.Sin(elapsed+offset),
			Pitch: 1.5 * math.Cos(elapsed*0.7+offset),
			Yaw:   100 * math.Sin(elapsed*0.2+offset),
		}
		yawRate := 100 * 0.2 * math.Cos(elapsed*0.2+offset) // °/s
		for _, r := range m.imuReadings(device, now, pose, yawRate) {
			m.publish(r)
		}

		var ppg [16]float32
		for j := range ppg {
			ppg[j] = float32(0.5 + 0.5*math.Sin(2*math.Pi*1.2*elapsed+float64(j)*0.1))
		}
		m.publish(Reading{Channel: ChannelID{device, KindPPG}, Timestamp: now, Values: ppg[:]})
	}

	if len(m.devices) > 0 && m.audioChunk > 0 {
		m.publish(Reading{Channel: ChannelID{m.devices[0], KindAudio}, Timestamp: now, PCM: m.tone()})
	}
}

func (m *MockProducer) imuReadings(device string, now time.Time, pose orientation.Pose, yawRateDeg float64) []Reading {
	q := pose.Quaternion()
	// at rest the accelerometer reads world up, seen from the device frame
	g := q.Conj().Rotate(orientation.Quaternion{Z: standardGravity})
	orient := q.Float32()

	values := map[Kind][]float32{
		KindOrientation: orient[:],
		KindAccel:       {float32(g.X), float32(g.Y), float32(g.Z)},
		KindGyro:        {0, 0, float32(yawRateDeg * math.Pi / 180)},
		KindGravity:     {float32(g.X), float32(g.Y), float32(g.Z)},
		KindLinearAccel: {0, 0, 0},
		KindMag:         {22, 5, -42},
		KindEuler:       {float32(pose.Roll), float32(pose.Pitch), float32(pose.Yaw)},
		KindPressure:    {float32(mockPressureHPa + 0.05*math.Sin(now.Sub(m.start).Seconds()))},
	}

	out := make([]Reading, 0, len(IMUKinds))
	for _, kind := range IMUKinds {
		out = append(out, Reading{Channel: ChannelID{device, kind}, Timestamp: now, Values: values[kind]})
	}
	return out
}

func (m *MockProducer) tone() []byte {
	pcm := make([]byte, m.audioChunk&^1)
	step := 2 * math.Pi * mockToneHz / mockSampleRate
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(8000 * math.Sin(m.phase))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(v))
		m.phase = math.Mod(m.phase+step, 2*math.Pi)
	}
	return pcm
}

func (m *MockProducer) publish(r Reading) {
	if err := m.sink.Publish(r); err != nil {
		log.Printf("mock: publish %s: %v", r.Channel, err)
	}
}
