// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package dispatcher implements the main ingest→parse→classify→rate-limit→
// fan-out pipeline: it owns the upstream provider endpoint and the set of
// AIS sinks, and hands own-vessel position reports off to the location
// worker over a channel.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vesselcomm/ais-forwarder/internal/endpoint"
	"github.com/vesselcomm/ais-forwarder/internal/nmea"
)

// field selects which half of a LastSent row a rate-limit check applies to.
type field int

const (
	fieldDynamic field = iota
	fieldStatic
)

// lastSent tracks the two independent per-MMSI rate-limit timestamps.
type lastSent struct {
	dynamicTS time.Time
	staticTS  time.Time
}

// Dispatcher owns the provider endpoint and the AIS sinks, and drives the
// main read→classify→rate-limit→broadcast→schedule-location loop. After any
// unrecoverable I/O error Run re-enters the work loop on the same instance;
// the rate-limit table and timing anchors are Dispatcher-local and survive
// across retries within one process lifetime.
type Dispatcher struct {
	logger *slog.Logger

	provider endpoint.Endpoint
	aisSinks map[string]endpoint.Endpoint
	aisNames []string // sorted once at construction for deterministic fan-out order

	handoff chan<- nmea.ParsedMessage
	parser  *nmea.Parser

	interval               time.Duration
	locationInterval       time.Duration
	locationAnchorInterval time.Duration

	lastSent map[uint32]*lastSent

	allowAISForLocation bool
	lastSentLocation    time.Time
	prevLat, prevLon    *float64

	fragments strings.Builder
}

// Config carries the tunables the Dispatcher needs at construction; it
// mirrors the [general] section of the loaded configuration file.
type Config struct {
	Interval               time.Duration
	LocationInterval       time.Duration
	LocationAnchorInterval time.Duration
}

// New builds a Dispatcher. ownMMSI is used by the nmea parser to tag
// decoded messages as own-vessel.
func New(logger *slog.Logger, cfg Config, ownMMSI uint32, provider endpoint.Endpoint, aisSinks map[string]endpoint.Endpoint, handoff chan<- nmea.ParsedMessage) *Dispatcher {
	names := make([]string, 0, len(aisSinks))
	for name := range aisSinks {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now()
	zero := 0.0
	return &Dispatcher{
		logger:                 logger,
		provider:               provider,
		aisSinks:               aisSinks,
		aisNames:               names,
		handoff:                handoff,
		parser:                 nmea.NewParser(ownMMSI),
		interval:               cfg.Interval,
		locationInterval:       cfg.LocationInterval,
		locationAnchorInterval: cfg.LocationAnchorInterval,
		lastSent:               make(map[uint32]*lastSent),
		allowAISForLocation:    true,
		lastSentLocation:       now.Add(-cfg.LocationInterval),
		// prevLat/prevLon start at a real coordinate (0,0), not nil, so the
		// first own-vessel position report is already "moved" relative to
		// it and can fire through the motion gate instead of only through
		// the anchor deadline.
		prevLat: &zero,
		prevLon: &zero,
	}
}

// AISSinkCount reports how many AIS sinks this Dispatcher fans out to.
func (d *Dispatcher) AISSinkCount() int {
	return len(d.aisNames)
}

// Run drives the work loop forever, sleeping 1 second and re-entering it
// after any propagated I/O error. There is no graceful shutdown path; the process
// is terminated externally.
func (d *Dispatcher) Run() {
	for {
		if err := d.work(); err != nil {
			d.logger.Error("dispatcher work loop failed, retrying", "error", err)
			time.Sleep(1 * time.Second)
		}
	}
}

// work reads from the provider until a fatal I/O error occurs.
func (d *Dispatcher) work() error {
	for {
		chunk, err := d.provider.ReadLine()
		if err != nil {
			return fmt.Errorf("reading from provider: %w", err)
		}
		if chunk == "" {
			continue
		}
		for _, line := range splitLines(chunk) {
			if err := d.processLine(line); err != nil {
				return err
			}
		}
	}
}

// splitLines breaks a possibly multi-line read into individual lines,
// preserving each line's trailing newline so the AIS fragment accumulator
// reproduces the original bytes exactly.
func splitLines(chunk string) []string {
	parts := strings.SplitAfter(chunk, "\n")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// processLine feeds one raw line to the parser and routes the result per
// the classification rules. Fragments are cleared after any classification
// (successful or rate-limited away) and after any parser error; they are
// preserved only across Incomplete results.
func (d *Dispatcher) processLine(raw string) error {
	parsed, err := d.parser.Parse(raw)
	if err != nil {
		d.logger.Log(context.Background(), slog.LevelDebug-4, "parser error, discarding fragment", "error", err)
		d.fragments.Reset()
		return nil
	}

	if parsed.Kind == nmea.KindIncomplete {
		d.fragments.WriteString(raw)
		return nil
	}

	d.fragments.WriteString(raw)
	defer d.fragments.Reset()

	switch parsed.Kind {
	case nmea.KindVesselDynamicData:
		return d.handleVesselDynamic(parsed)
	case nmea.KindVesselStaticData:
		return d.handleVesselStatic(parsed)
	case nmea.KindRmc:
		return d.handleRmc(parsed)
	default:
		return nil
	}
}

func (d *Dispatcher) handleVesselDynamic(parsed nmea.ParsedMessage) error {
	interval := d.interval
	if parsed.OwnVessel {
		interval = d.locationInterval
	}
	if !d.checkLastSent(parsed.MMSI, fieldDynamic, interval) {
		return nil
	}
	if err := d.broadcastAIS(); err != nil {
		return err
	}

	eligibleForLocation := d.allowAISForLocation && parsed.OwnVessel
	d.maybeEmitLocation(eligibleForLocation, parsed.Latitude, parsed.Longitude, parsed)
	return nil
}

func (d *Dispatcher) handleVesselStatic(parsed nmea.ParsedMessage) error {
	interval := d.interval
	if parsed.OwnVessel {
		interval = d.locationInterval
	}
	if !d.checkLastSent(parsed.MMSI, fieldStatic, interval) {
		return nil
	}
	return d.broadcastAIS()
}

func (d *Dispatcher) handleRmc(parsed nmea.ParsedMessage) error {
	d.allowAISForLocation = false
	d.maybeEmitLocation(true, parsed.Latitude, parsed.Longitude, parsed)
	return nil
}

// checkLastSent seeds a newly-seen MMSI's row to "just expired" so its
// first message always passes, then gates on elapsed time since the
// relevant field's timestamp.
func (d *Dispatcher) checkLastSent(mmsi uint32, f field, interval time.Duration) bool {
	now := time.Now()
	entry, ok := d.lastSent[mmsi]
	if !ok {
		entry = &lastSent{dynamicTS: now.Add(-interval), staticTS: now.Add(-interval)}
		d.lastSent[mmsi] = entry
	}

	var ts *time.Time
	switch f {
	case fieldDynamic:
		ts = &entry.dynamicTS
	case fieldStatic:
		ts = &entry.staticTS
	}

	if now.Sub(*ts) >= interval {
		*ts = now
		return true
	}
	return false
}

// broadcastAIS sends the current fragment accumulator to every AIS sink in
// a fixed, deterministic order. A sink error propagates out, triggering the
// outer 1-second retry.
func (d *Dispatcher) broadcastAIS() error {
	payload := []byte(d.fragments.String())
	for _, name := range d.aisNames {
		if err := d.aisSinks[name].Send(payload); err != nil {
			return fmt.Errorf("ais sink %q: %w", name, err)
		}
	}
	return nil
}

// maybeEmitLocation implements the two-deadline scheduling rule: a forced
// periodic anchor beacon, or a motion-gated emission no earlier than
// location_interval after the last one.
func (d *Dispatcher) maybeEmitLocation(eligible bool, lat, lon *float64, parsed nmea.ParsedMessage) {
	if !eligible {
		return
	}

	now := time.Now()
	anchorDeadline := d.lastSentLocation.Add(d.locationAnchorInterval)
	instantDeadline := d.lastSentLocation.Add(d.locationInterval)

	moving := nmea.IsMoving(lat, lon, d.prevLat, d.prevLon)
	fire := !now.Before(anchorDeadline) || (!now.Before(instantDeadline) && moving)
	if !fire {
		return
	}

	d.prevLat, d.prevLon = lat, lon
	d.lastSentLocation = now
	d.handoff <- parsed
}
