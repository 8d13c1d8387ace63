// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wire

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/mocap_streamer/internal/imu"
	"github.com/relabs-tech/mocap_streamer/internal/ppg"
)

var ts = time.Date(2026, 3, 1, 12, 30, 15, 123456789, time.UTC)

func randomSample(r *rand.Rand, t time.Time) imu.Sample {
	var p [imu.DataFloats]float32
	for i := range p {
		p[i] = float32(r.NormFloat64() * 100)
	}
	return imu.SampleFromPayload(t, p)
}

func TestFrameSizes(t *testing.T) {
	assert.Equal(t, 112, IMUFrameSize)
	assert.Equal(t, 220, DualIMUFrameSize)
	assert.Equal(t, 80, PPGFrameSize)

	assert.Len(t, EncodeIMU(IMUFrame{}), IMUFrameSize)
	assert.Len(t, EncodeDualIMU(DualIMUFrame{}), DualIMUFrameSize)
	assert.Len(t, EncodePPG(ppg.Sample{}), PPGFrameSize)
	assert.Len(t, EncodeAudio(nil, DefaultAudioFrameSize), DefaultAudioFrameSize)
}

func TestIMU_Layout(t *testing.T) {
	s := imu.Sample{Timestamp: ts, Orientation: [4]float32{1, 0, 0, 0}, Pressure: 1013.25}
	b := EncodeIMU(IMUFrame{DeltaT: 0.01, Sample: s})

	f32 := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])) }
	assert.Equal(t, float32(0.01), f32(0))

	limbs := [4]float32{f32(1), f32(2), f32(3), f32(4)}
	assert.Equal(t, SplitTimestamp(ts), limbs)

	assert.Equal(t, float32(1), f32(5)) // orientation w
	assert.Equal(t, float32(1013.25), f32(27))
}

func TestIMU_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		f := IMUFrame{DeltaT: r.Float32(), Sample: randomSample(r, ts.Add(time.Duration(i)*time.Millisecond))}

		b := EncodeIMU(f)
		got, err := DecodeIMU(b)
		require.NoError(t, err)
		assert.Equal(t, f, got)
		assert.Equal(t, b, EncodeIMU(got))
	}
}

func TestIMU_BitExactSpecialValues(t *testing.T) {
	s := imu.Sample{Timestamp: ts}
	s.Accel = imu.Vec3{
		X: float32(math.NaN()),
		Y: float32(math.Copysign(0, -1)),
		Z: float32(math.Inf(-1)),
	}
	s.Gyro.X = math.Float32frombits(0x00000001) // smallest subnormal

	b := EncodeIMU(IMUFrame{Sample: s})
	got, err := DecodeIMU(b)
	require.NoError(t, err)

	// NaN != NaN, so compare the re-encoded bytes instead of the structs.
	assert.Equal(t, b, EncodeIMU(got))
	assert.True(t, math.Signbit(float64(got.Sample.Accel.Y)))
	assert.Equal(t, uint32(1), math.Float32bits(got.Sample.Gyro.X))
}

func TestDualIMU_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	f := DualIMUFrame{
		DeltaT: 0.02,
		Left:   randomSample(r, ts),
		Right:  randomSample(r, ts.Add(3*time.Millisecond)),
	}

	b := EncodeDualIMU(f)
	got, err := DecodeDualIMU(b)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestPPG_RoundTrip(t *testing.T) {
	s := ppg.Sample{Timestamp: ts}
	for i := range s.Data {
		s.Data[i] = float32(i) * 0.125
	}

	b := EncodePPG(s)
	got, err := DecodePPG(b)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecode_WrongSize(t *testing.T) {
	_, err := DecodeIMU(make([]byte, IMUFrameSize-1))
	assert.ErrorIs(t, err, ErrFrameSize)

	_, err = DecodeDualIMU(make([]byte, IMUFrameSize))
	assert.ErrorIs(t, err, ErrFrameSize)

	_, err = DecodePPG(nil)
	assert.ErrorIs(t, err, ErrFrameSize)

	_, err = DecodeAudio(make([]byte, 10), 12)
	assert.ErrorIs(t, err, ErrFrameSize)
}

func TestAudio(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}

	b := EncodeAudio(pcm, 8)
	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0, 0}, b)

	samples, err := DecodeAudio(b, 8)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -1, math.MinInt16, 0}, samples)

	assert.Equal(t, []byte{0x01, 0x00}, EncodeAudio(pcm, 2))
}

func TestTimestamp(t *testing.T) {
	limbs := SplitTimestamp(ts)
	for _, l := range limbs {
		assert.Equal(t, l, float32(uint16(l)), "limb %v is not an exact 16-bit integer", l)
	}
	assert.True(t, ts.Equal(JoinTimestamp(limbs)))

	assert.Equal(t, [4]float32{}, SplitTimestamp(time.Time{}))
	assert.True(t, JoinTimestamp([4]float32{}).IsZero())
}
