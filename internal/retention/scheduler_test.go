package retention

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduler_SweepsOnStart(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, "detection_unknown_1.jpg", time.Now().Add(-30*24*time.Hour))

	s, err := NewScheduler(dir, 7, time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	done := make(chan Result, 1)
	s.OnSweep(func(r Result) {
		select {
		case done <- r:
		default:
		}
	})
	s.Start()
	defer s.Stop()

	select {
	case r := <-done:
		if r.Deleted != 1 {
			t.Errorf("Deleted = %d, want 1", r.Deleted)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled sweep did not run")
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old snapshot should be deleted by the scheduled sweep")
	}
}
