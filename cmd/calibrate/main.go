// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/balance_robot/internal/app"
	"github.com/relabs-tech/balance_robot/internal/config"
)

func main() {
	configPath := flag.String("config", "./balance_config.txt", "path to configuration file")
	numSamples := flag.Int("samples", 300, "number of still readings to average")
	flag.Parse()

	log.Println("starting balance-robot sensor calibration")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunCalibration(*numSamples); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
