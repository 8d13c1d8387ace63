// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/mocap_streamer/internal/app"
	"github.com/relabs-tech/mocap_streamer/internal/config"
)

func main() {
	configPath := flag.String("config", "mocap_config.txt", "Path to configuration file")
	verbose := flag.Bool("v", false, "Print every decoded frame")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunUDPListener(cfg, os.Stdout, *verbose); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
