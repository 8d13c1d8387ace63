// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package wire encodes samples into the fixed-size datagrams the receiving
// host expects. Every value is a little-endian IEEE-754 float32.
//
// Timestamps travel as four float32 values holding the 16-bit limbs of the
// nanosecond Unix time, most significant first. Each limb is an integer below
// 2^16 and therefore exact in a float32.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/mocap_streamer/internal/imu"
	"github.com/relabs-tech/mocap_streamer/internal/ppg"
)

const (
	floatSize       = 4
	timestampFloats = 4

	// IMUFrameSize is deltaT, timestamp and the sample payload.
	IMUFrameSize = (1 + timestampFloats + imu.DataFloats) * floatSize
	// DualIMUFrameSize is deltaT followed by a timestamp and payload per device.
	DualIMUFrameSize = (1 + 2*(timestampFloats+imu.DataFloats)) * floatSize
	// PPGFrameSize is a timestamp and the PPG payload.
	PPGFrameSize = (timestampFloats + ppg.DataFloats) * floatSize

	// DefaultAudioFrameSize is the audio datagram size unless configured.
	DefaultAudioFrameSize = 1600
)

// ErrFrameSize is returned when decoding a buffer of the wrong length.
var ErrFrameSize = errors.New("wire: unexpected frame size")

// IMUFrame is one single-device inertial datagram. DeltaT is the time since
// the previous frame of the same stream, in seconds.
type IMUFrame struct {
	DeltaT float32
	Sample imu.Sample
}

// DualIMUFrame carries the left and right devices in one datagram.
type DualIMUFrame struct {
	DeltaT float32
	Left   imu.Sample
	Right  imu.Sample
}

// EncodeIMU returns the IMUFrameSize byte encoding of f.
func EncodeIMU(f IMUFrame) []byte {
	w := writer{buf: make([]byte, IMUFrameSize)}
	w.float(f.DeltaT)
	w.sample(f.Sample)
	return w.buf
}

// DecodeIMU is the inverse of EncodeIMU.
func DecodeIMU(b []byte) (IMUFrame, error) {
	if len(b) != IMUFrameSize {
		return IMUFrame{}, sizeError(len(b), IMUFrameSize)
	}
	r := reader{buf: b}
	f := IMUFrame{DeltaT: r.float()}
	f.Sample = r.sample()
	return f, nil
}

// EncodeDualIMU returns the DualIMUFrameSize byte encoding of f.
func EncodeDualIMU(f DualIMUFrame) []byte {
	w := writer{buf: make([]byte, DualIMUFrameSize)}
	w.float(f.DeltaT)
	w.sample(f.Left)
	w.sample(f.Right)
	return w.buf
}

// DecodeDualIMU is the inverse of EncodeDualIMU.
func DecodeDualIMU(b []byte) (DualIMUFrame, error) {
	if len(b) != DualIMUFrameSize {
		return DualIMUFrame{}, sizeError(len(b), DualIMUFrameSize)
	}
	r := reader{buf: b}
	f := DualIMUFrame{DeltaT: r.float()}
	f.Left = r.sample()
	f.Right = r.sample()
	return f, nil
}

// EncodePPG returns the PPGFrameSize byte encoding of s.
func EncodePPG(s ppg.Sample) []byte {
	w := writer{buf: make([]byte, PPGFrameSize)}
	w.timestamp(s.Timestamp)
	for _, v := range s.Data {
		w.float(v)
	}
	return w.buf
}

// DecodePPG is the inverse of EncodePPG.
func DecodePPG(b []byte) (ppg.Sample, error) {
	if len(b) != PPGFrameSize {
		return ppg.Sample{}, sizeError(len(b), PPGFrameSize)
	}
	r := reader{buf: b}
	s := ppg.Sample{Timestamp: r.timestamp()}
	for i := range s.Data {
		s.Data[i] = r.float()
	}
	return s, nil
}

// EncodeAudio returns a size byte datagram holding pcm, zero padded. Bytes
// beyond size are dropped.
func EncodeAudio(pcm []byte, size int) []byte {
	buf := make([]byte, size)
	copy(buf, pcm)
	return buf
}

// DecodeAudio checks that b is a size byte audio datagram and returns its
// PCM16 samples.
func DecodeAudio(b []byte, size int) ([]int16, error) {
	if len(b) != size || size%2 != 0 {
		return nil, sizeError(len(b), size)
	}
	out := make([]int16, size/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out, nil
}

// SplitTimestamp returns the four 16-bit limbs of t's nanosecond Unix time,
// most significant first. Times before 1970 are clamped to zero.
func SplitTimestamp(t time.Time) [timestampFloats]float32 {
	var ns uint64
	if !t.IsZero() && t.UnixNano() > 0 {
		ns = uint64(t.UnixNano())
	}
	return [timestampFloats]float32{
		float32(ns>>48&0xffff),
		float32(ns>>32&0xffff),
		float32(ns>>16&0xffff),
		float32(ns&0xffff),
	}
}

// JoinTimestamp is the inverse of SplitTimestamp. All-zero limbs decode to
// the zero time.
func JoinTimestamp(limbs [timestampFloats]float32) time.Time {
	var ns uint64
	for _, l := range limbs {
		ns = ns<<16 | uint64(l)&0xffff
	}
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns)).UTC()
}

func sizeError(got, want int) error {
	return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, got, want)
}

type writer struct {
	buf []byte
	off int
}

func (w *writer) float(v float32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], math.Float32bits(v))
	w.off += floatSize
}

func (w *writer) timestamp(t time.Time) {
	for _, l := range SplitTimestamp(t) {
		w.float(l)
	}
}

func (w *writer) sample(s imu.Sample) {
	w.timestamp(s.Timestamp)
	for _, v := range s.Payload() {
		w.float(v)
	}
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) float() float32 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += floatSize
	return v
}

func (r *reader) timestamp() time.Time {
	var limbs [timestampFloats]float32
	for i := range limbs {
		limbs[i] = r.float()
	}
	return JoinTimestamp(limbs)
}

func (r *reader) sample() imu.Sample {
	ts := r.timestamp()
	var p [imu.DataFloats]float32
	for i := range p {
		p[i] = r.float()
	}
	return imu.SampleFromPayload(ts, p)
}
