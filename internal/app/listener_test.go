// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/imu"
	"github.com/relabs-tech/mocap_streamer/internal/ppg"
	"github.com/relabs-tech/mocap_streamer/internal/wire"
)

func TestListenPorts(t *testing.T) {
	kindsOf := func(ports []*listenPort) []string {
		var out []string
		for _, p := range ports {
			out = append(out, p.kind)
		}
		return out
	}

	cfg := config.Default()
	ports := listenPorts(cfg)
	assert.Equal(t, []string{StreamIMULeft, StreamIMURight, StreamPPG, StreamAudio}, kindsOf(ports))
	assert.Equal(t, cfg.PortIMURight, ports[1].port)

	cfg.IMUDualMerge = true
	ports = listenPorts(cfg)
	assert.Equal(t, []string{StreamIMUDual, StreamPPG, StreamAudio}, kindsOf(ports))
	assert.Equal(t, cfg.PortIMULeft, ports[0].port)
}

func TestDescribeFrame(t *testing.T) {
	sample := imu.Sample{Timestamp: t0, Orientation: [4]float32{1, 0, 0, 0}, Pressure: 1013.25}

	line, err := describeFrame(StreamIMULeft, wire.EncodeIMU(wire.IMUFrame{DeltaT: 0.01, Sample: sample}), 0)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"imu_left", "dt=0.0100s", "at=12:00:00.000", "q=[1.000", "0.000", "0.000", "0.000]", "p=1013.25hPa"},
		strings.Fields(line))

	line, err = describeFrame(StreamIMUDual, wire.EncodeDualIMU(wire.DualIMUFrame{DeltaT: 0.01, Left: sample, Right: sample}), 0)
	require.NoError(t, err)
	assert.Contains(t, line, "left=12:00:00.000 right=12:00:00.000")

	line, err = describeFrame(StreamPPG, wire.EncodePPG(ppg.Sample{Timestamp: t0}), 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "ppg"))

	pcm := []byte{0x10, 0x00, 0x00, 0x80, 0x05, 0x00, 0x00, 0x00}
	line, err = describeFrame(StreamAudio, wire.EncodeAudio(pcm, 8), 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"audio", "samples=4", "peak=32768"}, strings.Fields(line))
}

func TestDescribeFrame_Errors(t *testing.T) {
	_, err := describeFrame(StreamIMULeft, []byte{1, 2, 3}, 0)
	assert.ErrorIs(t, err, wire.ErrFrameSize)

	_, err = describeFrame(StreamAudio, make([]byte, 10), 8)
	assert.ErrorIs(t, err, wire.ErrFrameSize)

	_, err = describeFrame("video", nil, 0)
	assert.ErrorIs(t, err, ErrUnknownStream)
}
