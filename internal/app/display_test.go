// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/config"
)

func TestDisplayData_Handle(t *testing.T) {
	cfg := config.Default()
	d := newDisplayData()

	require.NoError(t, d.handle(cfg, cfg.TopicCalibrationStage, mustJSON(t, StagePayload{Stage: "idle", Error: "boom"})))
	s := d.snapshot()
	assert.Equal(t, "idle", s.stage)
	assert.Equal(t, "boom", s.lastError)

	require.NoError(t, d.handle(cfg, cfg.TopicCalibrationStage, mustJSON(t, StagePayload{Stage: "hold"})))
	assert.Empty(t, d.snapshot().lastError)

	require.NoError(t, d.handle(cfg, cfg.TopicCalibrationStage, mustJSON(t, StagePayload{Stage: "idle", Error: "again"})))
	res := calibration.Result{ReferencePressure: 1000, ReferenceHeadingOffsetDeg: -45, RunID: "r"}
	require.NoError(t, d.handle(cfg, cfg.TopicCalibration, mustJSON(t, res)))
	s = d.snapshot()
	assert.Empty(t, s.lastError)
	assert.True(t, s.haveResult)
	assert.Equal(t, float32(-45), s.result.ReferenceHeadingOffsetDeg)

	require.NoError(t, d.handle(cfg, cfg.StreamStateTopic(StreamPPG), mustJSON(t, StreamStatus{Kind: StreamPPG, State: "idle"})))
	require.NoError(t, d.handle(cfg, cfg.StreamStateTopic(StreamAudio), mustJSON(t, StreamStatus{Kind: StreamAudio, State: "streaming"})))
	require.NoError(t, d.handle(cfg, cfg.StreamStateTopic(StreamPPG), mustJSON(t, StreamStatus{Kind: StreamPPG, State: "streaming"})))
	s = d.snapshot()
	require.Len(t, s.streams, 2)
	assert.Equal(t, StreamAudio, s.streams[0].Kind)
	assert.Equal(t, StreamPPG, s.streams[1].Kind)
	assert.Equal(t, "streaming", s.streams[1].State)

	assert.Error(t, d.handle(cfg, "other", []byte("{}")))
	assert.Error(t, d.handle(cfg, cfg.TopicCalibration, []byte("{")))
}

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestRenderStatus(t *testing.T) {
	empty := renderStatus(displaySnapshot{})
	assert.Positive(t, litPixels(empty))

	full := renderStatus(displaySnapshot{
		stage:      "forward",
		result:     calibration.Result{ReferencePressure: 1013.25, ReferenceHeadingOffsetDeg: 120},
		haveResult: true,
		streams: []StreamStatus{
			{Kind: StreamAudio, State: "streaming"},
			{Kind: StreamIMULeft, State: "idle"},
			{Kind: StreamIMURight, State: "idle"},
			{Kind: StreamPPG, State: "streaming"},
		},
	})
	assert.Greater(t, litPixels(full), litPixels(empty))
	assert.Positive(t, litPixels(renderSplash()))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
}

type recordingBus struct {
	i2c.Bus
	addrs []uint16
}

func (b *recordingBus) Tx(addr uint16, w, r []byte) error {
	b.addrs = append(b.addrs, addr)
	return nil
}

func TestAddressedBus(t *testing.T) {
	rec := &recordingBus{}
	bus := &addressedBus{Bus: rec, addr: 0x3D}

	require.NoError(t, bus.Tx(0x3C, []byte{0x00}, nil))
	assert.Equal(t, []uint16{0x3D}, rec.addrs)
}
