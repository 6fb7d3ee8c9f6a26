// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package diagnostics logs a periodic "still alive" snapshot of the
// forwarder: process uptime, live sink counts, persistence backlog depth,
// and basic host memory/disk figures. This is ambient observability — a
// structured log line, not an exported metrics surface — for an unattended
// daemon running aboard a vessel with no operator watching a dashboard.
package diagnostics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const reportInterval = 5 * time.Minute

// Counters exposes the live counts the reporter logs each cycle.
type Counters struct {
	AISSinkCount      func() int
	LocationSinkCount func() int
	BacklogCount      func() int
}

// Reporter periodically logs a diagnostic snapshot.
type Reporter struct {
	logger    *slog.Logger
	counters  Counters
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a Reporter. The time New is called is recorded as the uptime
// baseline.
func New(logger *slog.Logger, counters Counters) *Reporter {
	return &Reporter{
		logger:    logger,
		counters:  counters,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins the periodic reporting goroutine.
func (r *Reporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.report()
			case <-ctx.Done():
				return
			}
		}
	}()

	r.logger.Info("diagnostics reporter started", "interval", reportInterval)
}

// Stop cancels the reporting goroutine and waits for it to exit.
func (r *Reporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
}

func (r *Reporter) report() {
	attrs := []any{
		"uptime_seconds", int64(time.Since(r.startTime).Seconds()),
		"ais_sinks", r.counters.AISSinkCount(),
		"location_sinks", r.counters.LocationSinkCount(),
		"persistence_backlog", r.counters.BacklogCount(),
	}

	if v, err := mem.VirtualMemory(); err == nil {
		attrs = append(attrs, "mem_used_percent", v.UsedPercent)
	} else {
		r.logger.Debug("failed to collect memory stats", "error", err)
	}

	if d, err := disk.Usage("/"); err == nil {
		attrs = append(attrs, "disk_used_percent", d.UsedPercent)
	} else {
		r.logger.Debug("failed to collect disk stats", "error", err)
	}

	r.logger.Info("forwarder diagnostics", attrs...)
}
