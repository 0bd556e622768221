package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmiw/radae-ota/pkg/analysis"
)

func testStore(t *testing.T, maxSessions int) *SessionStore {
	t.Helper()
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "test.db"), maxSessions)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord() *SessionRecord {
	return &SessionRecord{
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		Mode:        "txrx",
		FrequencyHz: 14236000,
		PowerMode:   "peak",
		Setpoint:    16384,
		TxPath:      "/tmp/tx.raw",
		CapturePath: "/tmp/rx.raw",
		CNoDBHz:     48.5,
		SyncRatio:   0.9,
		MeanSNRdB:   7.2,
		Termination: "completed",
	}
}

func TestSessionStore(t *testing.T) {
	t.Run("Save And Get", func(t *testing.T) {
		store := testStore(t, 100)
		metrics := []analysis.FrameMetric{
			{Frame: 0, Sync: false, SNRdB: -3},
			{Frame: 1, Sync: true, SNRdB: 7},
		}

		id, err := store.SaveSession(sampleRecord(), metrics)
		if err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
		if id == 0 {
			t.Fatal("Expected nonzero session ID")
		}

		rec, err := store.GetSession(id)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if rec.Mode != "txrx" {
			t.Errorf("Expected mode txrx, got %s", rec.Mode)
		}
		if rec.FrequencyHz != 14236000 {
			t.Errorf("Expected frequency 14236000, got %d", rec.FrequencyHz)
		}
		if rec.FrameCount != 2 {
			t.Errorf("Expected 2 frames, got %d", rec.FrameCount)
		}

		got, err := store.GetFrameMetrics(id)
		if err != nil {
			t.Fatalf("GetFrameMetrics failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 metrics, got %d", len(got))
		}
		if got[0].Sync || !got[1].Sync {
			t.Errorf("Sync flags wrong: %+v", got)
		}
		if got[1].SNRdB != 7 {
			t.Errorf("Expected SNR 7, got %f", got[1].SNRdB)
		}
	})

	t.Run("List Newest First", func(t *testing.T) {
		store := testStore(t, 100)
		for i := 0; i < 3; i++ {
			rec := sampleRecord()
			rec.StartedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
			rec.TxPath = fmt.Sprintf("/tmp/tx%d.raw", i)
			if _, err := store.SaveSession(rec, nil); err != nil {
				t.Fatalf("SaveSession %d failed: %v", i, err)
			}
		}

		sessions, err := store.ListSessions(10)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(sessions) != 3 {
			t.Fatalf("Expected 3 sessions, got %d", len(sessions))
		}
		if sessions[0].TxPath != "/tmp/tx2.raw" {
			t.Errorf("Expected newest first, got %s", sessions[0].TxPath)
		}
	})

	t.Run("Prunes Beyond Max", func(t *testing.T) {
		store := testStore(t, 2)
		for i := 0; i < 5; i++ {
			rec := sampleRecord()
			rec.StartedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
			if _, err := store.SaveSession(rec, nil); err != nil {
				t.Fatalf("SaveSession %d failed: %v", i, err)
			}
		}

		sessions, err := store.ListSessions(10)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(sessions) != 2 {
			t.Errorf("Expected pruning to 2 sessions, got %d", len(sessions))
		}
	})

	t.Run("Missing Session", func(t *testing.T) {
		store := testStore(t, 100)
		if _, err := store.GetSession(999); err == nil {
			t.Error("Expected error for missing session")
		}
	})

	t.Run("Latest Session ID", func(t *testing.T) {
		store := testStore(t, 100)
		latest, err := store.LatestSessionID()
		if err != nil {
			t.Fatalf("LatestSessionID failed: %v", err)
		}
		if latest != 0 {
			t.Errorf("Expected 0 for empty store, got %d", latest)
		}

		id, err := store.SaveSession(sampleRecord(), nil)
		if err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
		latest, err = store.LatestSessionID()
		if err != nil {
			t.Fatalf("LatestSessionID failed: %v", err)
		}
		if latest != id {
			t.Errorf("Expected latest %d, got %d", id, latest)
		}
	})
}
