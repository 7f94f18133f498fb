package store

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_CreatesFileAndDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "doorcam.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNew_Schema(t *testing.T) {
	s := newTestStore(t)

	objects := []struct{ kind, name string }{
		{"table", "detections"},
		{"table", "settings"},
		{"index", "idx_detections_ts"},
	}
	for _, o := range objects {
		var name string
		err := s.DB().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = ? AND name = ?`, o.kind, o.name,
		).Scan(&name)
		if err != nil {
			t.Errorf("%s %q missing: %v", o.kind, o.name, err)
		}
	}

	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != len(schema) {
		t.Errorf("SchemaVersion() = %d, want %d", v, len(schema))
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Settings().Set(KeyArmed, "false"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if v, err := s.Settings().Get(KeyArmed); err != nil || v != "false" {
		t.Errorf("Get(armed) = %q, %v after reopen", v, err)
	}
}

func TestNew_RejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().Exec(`PRAGMA user_version = 99`); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if s, err := New(dbPath); err == nil {
		s.Close()
		t.Fatal("expected error for a schema from a newer binary")
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("queries should fail after Close")
	}
}
