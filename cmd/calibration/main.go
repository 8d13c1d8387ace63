// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/mocap_streamer/internal/app"
	"github.com/relabs-tech/mocap_streamer/internal/config"
)

func main() {
	configPath := flag.String("config", "mocap_config.txt", "Path to configuration file")
	out := flag.String("out", "mocap_calibration.json", "Where to save the result")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	if err := app.RunCalibration(cfg, os.Stdin, os.Stdout, *out); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
