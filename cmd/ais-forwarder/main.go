// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/vesselcomm/ais-forwarder/internal/config"
	"github.com/vesselcomm/ais-forwarder/internal/diagnostics"
	"github.com/vesselcomm/ais-forwarder/internal/dispatcher"
	"github.com/vesselcomm/ais-forwarder/internal/endpoint"
	"github.com/vesselcomm/ais-forwarder/internal/location"
	"github.com/vesselcomm/ais-forwarder/internal/logging"
	"github.com/vesselcomm/ais-forwarder/internal/nmea"
	"github.com/vesselcomm/ais-forwarder/internal/persistence"
)

const defaultCacheDir = "/usr/local/var/cache/ais-forwarder"

func main() {
	configPath := pflag.String("config", "config", "config file name or path")
	cacheDir := pflag.String("cache-dir", defaultCacheDir, "persistence root directory")
	var verboseCount, quietCount int
	pflag.CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (repeatable)")
	pflag.CountVarP(&quietCount, "quiet", "q", "decrease log verbosity (repeatable)")
	pflag.Parse()

	level := logging.LevelFromVerbosity(verboseCount - quietCount)
	logger, logCloser := logging.NewLogger(level.String(), "json", "")
	defer logCloser.Close()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := endpoint.SetDSCP(cfg.General.DSCP); err != nil {
		logger.Error("invalid general.dscp", "error", err)
		os.Exit(1)
	}

	provider, err := endpoint.Parse(cfg.General.Provider)
	if err != nil {
		logger.Error("invalid provider endpoint", "error", err)
		os.Exit(1)
	}

	aisSinks, err := buildSinks(cfg.AIS)
	if err != nil {
		logger.Error("invalid ais sink endpoint", "error", err)
		os.Exit(1)
	}
	locationSinks, err := buildSinks(cfg.Location)
	if err != nil {
		logger.Error("invalid location sink endpoint", "error", err)
		os.Exit(1)
	}

	store, err := persistence.Open(*cacheDir)
	if err != nil {
		logger.Error("failed to open persistence store", "error", err)
		os.Exit(1)
	}

	handoff := make(chan nmea.ParsedMessage)

	worker := location.New(logger, cfg.General.MMSI, locationSinks, store)
	go func() {
		if err := worker.Run(handoff); err != nil {
			logger.Error("location worker terminated", "error", err)
		}
	}()

	d := dispatcher.New(logger, dispatcher.Config{
		Interval:               time.Duration(cfg.General.Interval) * time.Second,
		LocationInterval:       time.Duration(cfg.General.LocationInterval) * time.Second,
		LocationAnchorInterval: time.Duration(cfg.General.LocationAnchorInterval) * time.Second,
	}, cfg.General.MMSI, provider, aisSinks, handoff)

	reporter := diagnostics.New(logger, diagnostics.Counters{
		AISSinkCount:      d.AISSinkCount,
		LocationSinkCount: worker.SinkCount,
		BacklogCount:      worker.BacklogCount,
	})
	reporter.Start()

	logger.Info("ais-forwarder starting",
		"provider", provider.String(),
		"ais_sinks", len(aisSinks),
		"location_sinks", len(locationSinks),
		"cache_dir", *cacheDir,
	)

	// No graceful shutdown path: process termination is the shutdown
	// mechanism. Run blocks forever, re-entering its own work loop on error.
	d.Run()
}

func buildSinks(entries map[string]string) (map[string]endpoint.Endpoint, error) {
	sinks := make(map[string]endpoint.Endpoint, len(entries))
	for name, raw := range entries {
		ep, err := endpoint.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", name, err)
		}
		sinks[name] = ep
	}
	return sinks, nil
}
