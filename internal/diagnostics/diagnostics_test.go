// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package diagnostics

import (
	"log/slog"
	"testing"
	"time"
)

func TestReport_UsesSuppliedCounters(t *testing.T) {
	var sawAIS, sawLocation, sawBacklog bool
	counters := Counters{
		AISSinkCount:      func() int { sawAIS = true; return 3 },
		LocationSinkCount: func() int { sawLocation = true; return 1 },
		BacklogCount:      func() int { sawBacklog = true; return 0 },
	}
	r := New(slog.Default(), counters)
	r.report()

	if !sawAIS || !sawLocation || !sawBacklog {
		t.Error("expected report to invoke every counter function")
	}
}

func TestStartStop_TerminatesCleanly(t *testing.T) {
	counters := Counters{
		AISSinkCount:      func() int { return 0 },
		LocationSinkCount: func() int { return 0 },
		BacklogCount:      func() int { return 0 },
	}
	r := New(slog.Default(), counters)
	r.Start()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
