// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package location implements the location worker: it consumes own-vessel
// position reports handed off by the dispatcher, formats them as $GNRMC
// sentences, attempts delivery to every configured Location sink, and
// durably queues sentences a sink could not accept for later replay.
package location

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vesselcomm/ais-forwarder/internal/endpoint"
	"github.com/vesselcomm/ais-forwarder/internal/nmea"
	"github.com/vesselcomm/ais-forwarder/internal/persistence"
)

const idleTimeout = 60 * time.Second

// Worker owns the Location sinks and the persistence store. It is a single
// instance living for the process lifetime.
type Worker struct {
	logger *slog.Logger

	mmsi      uint32
	sinks     map[string]endpoint.Endpoint
	sinkNames []string

	store *persistence.Store

	connectionOK bool
}

// New builds a Worker. mmsi is the own vessel's MMSI, used as the GNRMC
// prefix for Rmc-sourced messages (which carry no MMSI of their own).
func New(logger *slog.Logger, mmsi uint32, sinks map[string]endpoint.Endpoint, store *persistence.Store) *Worker {
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Worker{
		logger:    logger,
		mmsi:      mmsi,
		sinks:     sinks,
		sinkNames: names,
		store:     store,
	}
}

// SinkCount reports how many Location sinks this Worker delivers to.
func (w *Worker) SinkCount() int {
	return len(w.sinkNames)
}

// BacklogCount reports the current persistence backlog size.
func (w *Worker) BacklogCount() int {
	return w.store.Count()
}

// Run consumes parsed own-vessel messages from handoff until it is closed.
// It returns an error on channel disconnect — in practice this does not
// happen during normal operation, since the dispatcher owns the only
// sender for the process lifetime.
func (w *Worker) Run(handoff <-chan nmea.ParsedMessage) error {
	for {
		select {
		case msg, ok := <-handoff:
			if !ok {
				return fmt.Errorf("handoff channel closed")
			}
			if !w.connectionOK {
				w.connectionOK = w.resendMessages() == nil
			}
			w.handleMessage(msg)
		case <-time.After(idleTimeout):
			w.connectionOK = w.resendMessages() == nil
		}
	}
}

// handleMessage formats msg and attempts delivery to every Location sink.
// A sink that rejects the send gets the formatted sentence durably queued
// under a key scoped to that sink's name; any such failure clears the
// connection-ok flag.
func (w *Worker) handleMessage(msg nmea.ParsedMessage) {
	sentence := formatGNRMC(msg, w.mmsi)
	if sentence == "" {
		return
	}

	anyFailure := false
	for _, name := range w.sinkNames {
		if err := w.sinks[name].Send([]byte(sentence)); err != nil {
			w.logger.Warn("location sink send failed, queuing for replay", "sink", name, "error", err)
			key := []byte(fmt.Sprintf("%s-%s", time.Now().UTC().Format(time.RFC3339Nano), name))
			if err := w.store.Store(key, []byte(sentence)); err != nil {
				w.logger.Error("failed to persist undelivered location sentence", "error", err)
			}
			anyFailure = true
		}
	}
	if anyFailure {
		w.connectionOK = false
	}
}

// resendMessages drains the persistence backlog in key order, sending each
// stored value to every Location sink. A key is removed and the store
// flushed only after the full per-sink loop for that key completes; a send
// error propagates immediately, leaving remaining entries on disk.
func (w *Worker) resendMessages() error {
	if w.store.Count() == 0 {
		return nil
	}

	entries, err := w.store.Iter()
	if err != nil {
		return fmt.Errorf("iterating persistence: %w", err)
	}

	for _, entry := range entries {
		for _, name := range w.sinkNames {
			if err := w.sinks[name].Send(entry.Value); err != nil {
				return fmt.Errorf("resend to %q: %w", name, err)
			}
		}
		if err := w.store.Remove(entry.Key); err != nil {
			return fmt.Errorf("removing replayed entry: %w", err)
		}
		if err := w.store.Flush(); err != nil {
			return fmt.Errorf("flushing after replay: %w", err)
		}
	}
	return nil
}
