// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package location

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/vesselcomm/ais-forwarder/internal/endpoint"
	"github.com/vesselcomm/ais-forwarder/internal/nmea"
	"github.com/vesselcomm/ais-forwarder/internal/persistence"
)

type fakeSink struct {
	sent     [][]byte
	sendErr  error
	sendErrN int // if > 0, only the first N sends fail
}

func (f *fakeSink) Send(p []byte) error {
	if f.sendErr != nil && (f.sendErrN == 0 || len(f.sent) < f.sendErrN) {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}
func (f *fakeSink) ReadLine() (string, error) { return "", nil }
func (f *fakeSink) String() string            { return "fake://sink" }

func openTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	s, err := persistence.Open(t.TempDir())
	if err != nil {
		t.Fatalf("persistence.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHandleMessage_FailoverQueuesToPersistence(t *testing.T) {
	store := openTestStore(t)
	unreachable := &fakeSink{sendErr: errors.New("connection refused")}
	w := New(slog.Default(), 111111111, map[string]endpoint.Endpoint{"home": unreachable}, store)

	lat, lon := 53.17, 5.42
	msg := nmea.ParsedMessage{Kind: nmea.KindVesselDynamicData, MMSI: 111111111, Latitude: &lat, Longitude: &lon}

	w.handleMessage(msg)

	if store.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after a failed send", store.Count())
	}
	if w.connectionOK {
		t.Error("connectionOK should be cleared after a send failure")
	}

	entries, err := store.Iter()
	if err != nil {
		t.Fatalf("Iter: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one stored entry, got %d", len(entries))
	}
	value := string(entries[0].Value)
	if value[len(value)-2:] != "\r\n" {
		t.Errorf("stored value must end in CRLF, got %q", value)
	}
}

func TestResendMessages_DeliversAndDrainsBacklog(t *testing.T) {
	store := openTestStore(t)
	sink := &fakeSink{}
	w := New(slog.Default(), 111111111, map[string]endpoint.Endpoint{"home": sink}, store)

	if err := store.Store([]byte("2026-01-01T00:00:00Z-home"), []byte("$GNRMC,stale\r\n")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := w.resendMessages(); err != nil {
		t.Fatalf("resendMessages: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d after successful resend, want 0", store.Count())
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly one delivery during resend, got %d", len(sink.sent))
	}
}

func TestResendMessages_EmptyBacklogIsNoop(t *testing.T) {
	store := openTestStore(t)
	sink := &fakeSink{}
	w := New(slog.Default(), 111111111, map[string]endpoint.Endpoint{"home": sink}, store)

	if err := w.resendMessages(); err != nil {
		t.Fatalf("resendMessages on empty store: %v", err)
	}
	if len(sink.sent) != 0 {
		t.Error("expected no sends for an empty backlog")
	}
}

func TestResendMessages_SendErrorLeavesRemainingEntriesOnDisk(t *testing.T) {
	store := openTestStore(t)
	sink := &fakeSink{sendErr: errors.New("refused")}
	w := New(slog.Default(), 111111111, map[string]endpoint.Endpoint{"home": sink}, store)

	store.Store([]byte("k1"), []byte("v1"))
	store.Store([]byte("k2"), []byte("v2"))

	if err := w.resendMessages(); err == nil {
		t.Fatal("expected resendMessages to propagate the sink error")
	}
	if store.Count() != 2 {
		t.Errorf("Count() = %d, want 2 (nothing drained on failure)", store.Count())
	}
}

func TestHandleMessage_SuccessfulDeliveryDoesNotPersist(t *testing.T) {
	store := openTestStore(t)
	sink := &fakeSink{}
	w := New(slog.Default(), 111111111, map[string]endpoint.Endpoint{"home": sink}, store)
	w.connectionOK = true

	lat, lon := 53.17, 5.42
	msg := nmea.ParsedMessage{Kind: nmea.KindVesselDynamicData, MMSI: 111111111, Latitude: &lat, Longitude: &lon}
	w.handleMessage(msg)

	if store.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after a successful delivery", store.Count())
	}
	if !w.connectionOK {
		t.Error("connectionOK should remain true after a successful delivery")
	}
}
