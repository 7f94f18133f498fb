package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.FramesRead.Add(12)
	m.EventsIntruder.Add(2)
	m.EventsAllowed.Add(1)
	m.UpdateDetectLatency(42 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"doorcam_frames_read_total 12",
		`doorcam_events_total{classification="INTRUDER"} 2`,
		`doorcam_events_total{classification="ALLOWED"} 1`,
		"doorcam_detect_latency_ms 42",
		"doorcam_armed 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.Throttled.Add(3)
	m.NotifyFailed.Add(1)

	s := m.Snapshot()
	if s.Throttled != 3 || s.NotifyFailed != 1 {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestRegistry_Gather(t *testing.T) {
	m := New()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) < 10 {
		t.Errorf("expected the full metric set, got %d families", len(families))
	}
}
