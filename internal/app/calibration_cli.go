// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/relabs-tech/mocap_streamer/internal/calibration"
	"github.com/relabs-tech/mocap_streamer/internal/config"
	"github.com/relabs-tech/mocap_streamer/internal/sensors"
)

// RunCalibration runs one guided calibration in the console and saves the
// result as JSON to savePath.
func RunCalibration(cfg *config.Config, in io.Reader, out io.Writer, savePath string) error {
	ctx, stop := signalContext()
	defer stop()

	hub := sensors.NewHub()
	src, err := openSampleSource(cfg, hub)
	if err != nil {
		return err
	}
	producerErr := src.start(ctx)

	engine := calibration.NewEngine(calibration.ConfigFrom(cfg), hub, openHaptic(cfg), nil)
	defer engine.Cancel()
	engine.AddListener(calibration.Listener{
		OnStage: func(st calibration.Stage) { fmt.Fprintln(out, stagePrompt(cfg, st)) },
	})

	fmt.Fprintln(out, "=== Guided Calibration (pressure + heading) ===")
	fmt.Fprintf(out, "Device: %s, window %v, turn at least %.1f°\n\n",
		cfg.CalibrationDevice, cfg.CalibrationWindow, cfg.CalibrationMinHeadingDeltaDeg)
	fmt.Fprint(out, "Stand still and press ENTER to start...")
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && err != io.EOF {
		return err
	}

	if err := engine.Begin(ctx); err != nil {
		return err
	}
	select {
	case <-engine.Done():
	case err := <-producerErr:
		return err
	}

	if err := engine.Err(); err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}
	res, _ := engine.Result()

	fmt.Fprintf(out, "\nReference pressure:       %.2f hPa\n", res.ReferencePressure)
	fmt.Fprintf(out, "Reference heading offset: %+.1f°\n", res.ReferenceHeadingOffsetDeg)

	if err := saveResult(savePath, res); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved to %s\n", savePath)
	return nil
}

func stagePrompt(cfg *config.Config, st calibration.Stage) string {
	switch st {
	case calibration.StageHold:
		return fmt.Sprintf("Step 1/2: hold still for %v...", cfg.CalibrationWindow)
	case calibration.StageForward:
		return "Step 2/2: turn to face forward and stay upright until the buzz stops..."
	default:
		return "Done."
	}
}

func saveResult(path string, res calibration.Result) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
