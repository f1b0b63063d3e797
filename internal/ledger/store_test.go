package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/gatesync/internal/fault"
)

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if i == 0 {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("ledger file missing after first open: %v", err)
			}
		}
		var tables int
		err = s.db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type='table' AND name='ledger_entries'").Scan(&tables)
		if err != nil || tables != 1 {
			t.Errorf("open #%d: ledger_entries tables = %d, err = %v", i+1, tables, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "2"}, // FULL
		{"user_version", "1"},
	}
	for _, tt := range tests {
		got, err := s.pragma(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "ledger.db"))
	if err == nil {
		t.Fatal("Open succeeded in a directory that does not exist")
	}
	if !fault.IsLedgerIO(err) {
		t.Errorf("expected LedgerIO class, got %s", fault.ClassOf(err))
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening ledger with newer schema")
	}
}

func TestClose_ZeroStore(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Errorf("closing a zero Store: %v", err)
	}
}
