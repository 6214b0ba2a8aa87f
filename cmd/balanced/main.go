// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/balance_robot/internal/app"
	"github.com/relabs-tech/balance_robot/internal/config"
)

func main() {
	configPath := flag.String("config", "./balance_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting balance-robot control daemon")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunBalance(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
