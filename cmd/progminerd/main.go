// progminer: ProgPoW GPU mining rig
// Copyright (C) 2026  The progminer authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// progminerd runs the GPU rig daemon: it configures the mining
// backends, opens one miner per enabled device, and serves the
// control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"progminer/internal/config"
	"progminer/internal/driver/device"
	"progminer/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (JSON)")
		driverName = flag.String("driver", "", "mining driver: cuda, opencl or sim")
		devices    = flag.Uint("devices", 0, "number of GPU devices to use")
		apiPort    = flag.Int("port", 0, "API server port")
		simulate   = flag.Bool("simulate", false, "use the simulated backend")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *driverName != "" {
		cfg.Driver = *driverName
	}
	if *devices > 0 {
		cfg.Settings.Devices = uint32(*devices)
	}
	if *apiPort > 0 {
		cfg.APIPort = *apiPort
	}
	if *simulate {
		cfg.Driver = "sim"
	}

	if err := run(cfg); err != nil {
		if device.IsFatal(err) {
			log.Printf("fatal: %v", err)
			os.Exit(1)
		}
		log.Fatalf("progminerd: %v", err)
	}
}

func run(cfg *config.Config) error {
	rig, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("start rig: %w", err)
	}
	defer rig.Stop()
	rig.Start()

	api := server.NewAPI(rig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("received %v, shutting down", sig)
		case <-api.ShutdownRequested():
			log.Printf("shutdown requested over API")
		}
		cancel()
	}()

	return api.ListenAndServe(ctx, cfg.APIPort)
}
