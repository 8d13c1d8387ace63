// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/mocap_streamer/internal/app"
	"github.com/relabs-tech/mocap_streamer/internal/config"
)

func main() {
	configPath := flag.String("config", "mocap_config.txt", "Path to configuration file")
	flag.Parse()

	log.Println("starting mocap streamer")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunStreamer(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
