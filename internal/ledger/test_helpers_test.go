package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/gatesync/internal/window"
)

var testZone = time.FixedZone("+02:00", 2*60*60)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string {
	return &s
}

func testWindow() window.Window {
	return window.Window{
		From: time.Date(2025, 1, 1, 0, 0, 0, 0, testZone),
		To:   time.Date(2025, 12, 31, 23, 59, 59, 0, testZone),
	}
}

func testEntry(key string) Entry {
	now := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
	return Entry{
		Key:                  key,
		NationalID:           "N-" + key,
		DownstreamID:         strPtr("hik-" + key),
		GroupAssigned:        true,
		Window:               testWindow(),
		LastAppliedEventKind: "created",
		ReportedStatus:       "approved",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
