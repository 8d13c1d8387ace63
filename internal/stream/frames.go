// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stream

import (
	"context"
	"sync"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/ppg"
	"github.com/relabs-tech/mocap_streamer/internal/sensors"
	"github.com/relabs-tech/mocap_streamer/internal/timeutil"
	"github.com/relabs-tech/mocap_streamer/internal/wire"
)

// IMUFrames encodes single-device inertial frames.
type IMUFrames struct {
	composer *sensors.Composer
	last     time.Time
}

// NewIMUFrames returns a frame source reading from c.
func NewIMUFrames(c *sensors.Composer) *IMUFrames {
	return &IMUFrames{composer: c}
}

// NextFrame implements FrameSource.
func (f *IMUFrames) NextFrame(context.Context) ([]byte, error) {
	s, err := f.composer.Next()
	if err != nil {
		return nil, err
	}
	dt := deltaT(f.last, s.Timestamp)
	f.last = s.Timestamp
	return wire.EncodeIMU(wire.IMUFrame{DeltaT: dt, Sample: s}), nil
}

// DualIMUFrames merges two devices into one frame. Both must have a new
// sample; a device that is ready early keeps its sample until the other
// catches up.
type DualIMUFrames struct {
	left, right *sensors.Composer
	last        time.Time
}

// NewDualIMUFrames returns a frame source reading from left and right.
func NewDualIMUFrames(left, right *sensors.Composer) *DualIMUFrames {
	return &DualIMUFrames{left: left, right: right}
}

// NextFrame implements FrameSource.
func (f *DualIMUFrames) NextFrame(context.Context) ([]byte, error) {
	l, err := f.left.Peek()
	if err != nil {
		return nil, err
	}
	r, err := f.right.Peek()
	if err != nil {
		return nil, err
	}
	f.left.Commit(l)
	f.right.Commit(r)

	newest := l.Timestamp
	if r.Timestamp.After(newest) {
		newest = r.Timestamp
	}
	dt := deltaT(f.last, newest)
	f.last = newest
	return wire.EncodeDualIMU(wire.DualIMUFrame{DeltaT: dt, Left: l, Right: r}), nil
}

// PPGFrames encodes the latest PPG reading of one device.
type PPGFrames struct {
	src    sensors.Source
	device string
	last   time.Time
}

// NewPPGFrames returns a frame source for device's PPG channel.
func NewPPGFrames(src sensors.Source, device string) *PPGFrames {
	return &PPGFrames{src: src, device: device}
}

// NextFrame implements FrameSource.
func (f *PPGFrames) NextFrame(context.Context) ([]byte, error) {
	r, ok := f.src.Latest(sensors.ChannelID{Device: f.device, Kind: sensors.KindPPG})
	if !ok || !r.Timestamp.After(f.last) || len(r.Values) != ppg.DataFloats {
		return nil, sensors.ErrIncompleteSample
	}
	f.last = r.Timestamp

	s := ppg.Sample{Timestamp: r.Timestamp}
	copy(s.Data[:], r.Values)
	return wire.EncodePPG(s), nil
}

// maxAudioChunks bounds the PCM buffered ahead of the sender. Older bytes are
// dropped first.
const maxAudioChunks = 8

// AudioFrames re-chunks the PCM bytes of one device's audio channel into
// fixed-size frames.
type AudioFrames struct {
	chunk int
	wait  time.Duration
	clock timeutil.Clock

	unsubscribe func()
	ready       chan struct{}

	mu  sync.Mutex
	buf []byte
}

// NewAudioFrames subscribes to device's audio channel. NextFrame waits up to
// wait for a full chunk of chunkBytes. Close releases the subscription.
func NewAudioFrames(src sensors.Source, device string, chunkBytes int, wait time.Duration, clock timeutil.Clock) *AudioFrames {
	if chunkBytes <= 0 {
		chunkBytes = wire.DefaultAudioFrameSize
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	f := &AudioFrames{
		chunk: chunkBytes,
		wait:  wait,
		clock: clock,
		ready: make(chan struct{}, 1),
	}
	f.unsubscribe = src.Subscribe(sensors.ChannelID{Device: device, Kind: sensors.KindAudio}, f.push)
	return f
}

func (f *AudioFrames) push(r sensors.Reading) {
	f.mu.Lock()
	f.buf = append(f.buf, r.PCM...)
	if limit := maxAudioChunks * f.chunk; len(f.buf) > limit {
		f.buf = append(f.buf[:0], f.buf[len(f.buf)-limit:]...)
	}
	full := len(f.buf) >= f.chunk
	f.mu.Unlock()

	if full {
		select {
		case f.ready <- struct{}{}:
		default:
		}
	}
}

// Buffered returns the number of PCM bytes waiting to be sent.
func (f *AudioFrames) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// NextFrame implements FrameSource.
func (f *AudioFrames) NextFrame(ctx context.Context) ([]byte, error) {
	if frame, ok := f.take(); ok {
		return frame, nil
	}

	timer := f.clock.NewTimer(f.wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C():
			if frame, ok := f.take(); ok {
				return frame, nil
			}
			return nil, sensors.ErrIncompleteSample
		case <-f.ready:
			if frame, ok := f.take(); ok {
				return frame, nil
			}
		}
	}
}

func (f *AudioFrames) take() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) < f.chunk {
		return nil, false
	}
	frame := wire.EncodeAudio(f.buf[:f.chunk], f.chunk)
	f.buf = append(f.buf[:0], f.buf[f.chunk:]...)
	return frame, true
}

// Reset drops buffered audio. A session calls it on Start so audio captured
// while idle is not sent as a burst.
func (f *AudioFrames) Reset() {
	f.mu.Lock()
	f.buf = f.buf[:0]
	f.mu.Unlock()

	select {
	case <-f.ready:
	default:
	}
}

// Close unsubscribes from the audio channel.
func (f *AudioFrames) Close() {
	f.unsubscribe()
}

func deltaT(prev, now time.Time) float32 {
	if prev.IsZero() {
		return 0
	}
	return float32(now.Sub(prev).Seconds())
}
