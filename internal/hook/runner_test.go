package hook

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/doorcam/internal/event"
)

func TestRunner_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	marker := filepath.Join(dir, "fired")

	writeHook(t, dir, Manifest{Name: "a-intruder", Executable: "run.sh", Events: []string{"INTRUDER"}},
		"#!/bin/sh\ncat >/dev/null\necho intruder >> "+marker+"\necho '{\"success\":true}'\n")
	writeHook(t, dir, Manifest{Name: "b-allowed", Executable: "run.sh", Events: []string{"ALLOWED"}},
		"#!/bin/sh\ncat >/dev/null\necho allowed >> "+marker+"\necho '{\"success\":true}'\n")
	writeHook(t, dir, Manifest{Name: "c-broken", Executable: "run.sh"},
		"#!/bin/sh\ncat >/dev/null\necho '{\"success\":false,\"error\":\"relay offline\"}'\n")

	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(m, NewExecutor(5*time.Second), zerolog.Nop())
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	ev := event.New(time.Now(), event.Intruder, 0.9, image.Rect(0, 0, 1, 1), "", 0)
	if failed := r.Run(context.Background(), ev); failed != 1 {
		t.Errorf("Run() failed = %d, want 1", failed)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("marker not written: %v", err)
	}
	if string(data) != "intruder\n" {
		t.Errorf("marker = %q, want only the intruder hook", data)
	}
}

func TestRunner_NoHooks(t *testing.T) {
	m := NewManager("")
	m.Discover()
	r := NewRunner(m, NewExecutor(0), zerolog.Nop())

	ev := event.New(time.Now(), event.Allowed, 0.9, image.Rect(0, 0, 1, 1), "alice", 0)
	if failed := r.Run(context.Background(), ev); failed != 0 {
		t.Errorf("Run() failed = %d, want 0", failed)
	}
}
