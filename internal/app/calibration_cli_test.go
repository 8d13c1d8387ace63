// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/config"
)

func TestSaveResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "cal.json")
	res := calibration.Result{ReferencePressure: 1013.25, ReferenceHeadingOffsetDeg: 120, CompletedAt: t0, RunID: "run-1"}

	require.NoError(t, saveResult(path, res))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, 120.0, fields["reference_heading_offset_deg"])
	assert.Equal(t, "2026-03-01T12:00:00Z", fields["completed_at"])
}

func TestStagePrompt(t *testing.T) {
	cfg := config.Default()
	assert.Contains(t, stagePrompt(cfg, calibration.StageHold), "hold still for 3s")
	assert.Contains(t, stagePrompt(cfg, calibration.StageForward), "face forward")
	assert.Equal(t, "Done.", stagePrompt(cfg, calibration.StageIdle))
}

func TestMockAudioChunk(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 320, mockAudioChunk(cfg, 10*time.Millisecond))

	cfg.AudioBufferBytes = 1601
	assert.Zero(t, mockAudioChunk(cfg, 10*time.Millisecond)%2)
}
