package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/doorcam/internal/event"
	"github.com/ayusman/doorcam/internal/metrics"
	"github.com/ayusman/doorcam/internal/store"
)

type fakeSwitch struct {
	mu    sync.Mutex
	armed bool
	err   error
}

func (f *fakeSwitch) Armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

func (f *fakeSwitch) SetArmed(v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.armed = v
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/events", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Status(t *testing.T) {
	m := metrics.New()
	m.FramesRead.Add(7)
	m.EventsIntruder.Add(1)

	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	sw := &fakeSwitch{armed: false}
	s := New(Config{
		Metrics: m,
		Switch:  sw,
		Status:  func() any { return map[string]string{"state": "COOLDOWN"} },
		Hub:     hub,
	})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var resp struct {
		Armed    bool              `json:"armed"`
		Counters metrics.Snapshot  `json:"counters"`
		Loop     map[string]string `json:"loop"`
		Feed     *feedStatus       `json:"feed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Armed {
		t.Error("armed = true, want false")
	}
	if resp.Counters.FramesRead != 7 || resp.Counters.Intruder != 1 {
		t.Errorf("counters = %+v", resp.Counters)
	}
	if resp.Loop["state"] != "COOLDOWN" {
		t.Errorf("loop = %v", resp.Loop)
	}
	if resp.Feed == nil || resp.Feed.Clients != 0 || resp.Feed.Dropped != 0 {
		t.Errorf("feed = %+v", resp.Feed)
	}
}

func TestServer_ArmDisarm(t *testing.T) {
	sw := &fakeSwitch{armed: true}
	s := New(Config{Switch: sw, Logger: zerolog.Nop()})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/disarm", nil))
	if rec.Code != http.StatusOK || sw.Armed() {
		t.Fatalf("disarm: code = %d, armed = %v", rec.Code, sw.Armed())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/arm", nil))
	if rec.Code != http.StatusOK || !sw.Armed() {
		t.Fatalf("arm: code = %d, armed = %v", rec.Code, sw.Armed())
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/arm", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/arm = %d, want 405", rec.Code)
	}

	sw.err = errors.New("disk full")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/disarm", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("failing switch = %d, want 500", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.New()
	m.NotifySent.Add(4)
	s := New(Config{Metrics: m})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "doorcam_notifications_sent_total 4") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestAPI_EventWorkflow(t *testing.T) {
	st := newTestStore(t)
	imagesDir := t.TempDir()

	img := filepath.Join(imagesDir, "detection_unknown_20240101_000000_000.jpg")
	if err := os.WriteFile(img, []byte("\xff\xd8jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(t.TempDir(), "secret.jpg")
	os.WriteFile(outside, []byte("nope"), 0o644)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	first := event.New(base, event.Intruder, 0.81, image.Rect(1, 2, 3, 4), "", 0).WithImage(img)
	second := event.New(base.Add(time.Minute), event.Allowed, 0.92, image.Rect(5, 6, 7, 8), "alice", 0)
	leaky := event.New(base.Add(2*time.Minute), event.Intruder, 0.7, image.Rect(0, 0, 1, 1), "", 0).WithImage(outside)
	for _, ev := range []event.Detection{first, second, leaky} {
		if err := st.Detections().Create(ev); err != nil {
			t.Fatal(err)
		}
	}

	ts := httptest.NewServer(New(Config{Store: st, ImagesDir: imagesDir}))
	defer ts.Close()
	client := ts.Client()

	// 1. List, newest first
	resp, err := client.Get(ts.URL + "/api/events?limit=2")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	var listed listEventsResponse
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if listed.Count != 2 || listed.Events[0].ID != leaky.ID || listed.Events[1].ID != second.ID {
		t.Fatalf("listed = %+v", listed)
	}

	// 2. Get one
	resp, _ = client.Get(ts.URL + "/api/events/" + second.ID)
	var got event.Detection
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || got.PersonName != "alice" || got.Box != second.Box {
		t.Errorf("GET event = %d %+v", resp.StatusCode, got)
	}

	// 3. Image
	resp, _ = client.Get(ts.URL + "/api/events/" + first.ID + "/image")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "\xff\xd8jpeg" {
		t.Errorf("GET image = %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("image Content-Type = %q", ct)
	}

	// 4. Failure cases
	cases := []struct {
		path string
		want int
	}{
		{"/api/events/" + second.ID + "/image", http.StatusNotFound}, // no image
		{"/api/events/" + leaky.ID + "/image", http.StatusNotFound},  // outside images dir
		{"/api/events/does-not-exist", http.StatusNotFound},
		{"/api/events/" + first.ID + "/other", http.StatusNotFound},
		{"/api/events?limit=abc", http.StatusBadRequest},
		{"/api/events?limit=-1", http.StatusBadRequest},
	}
	for _, c := range cases {
		resp, err := client.Get(ts.URL + c.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Errorf("GET %s = %d, want %d", c.path, resp.StatusCode, c.want)
		}
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/events/"+first.ID, nil)
	resp, _ = client.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE = %d, want 405", resp.StatusCode)
	}
}

func TestAPI_EmptyList(t *testing.T) {
	s := New(Config{Store: newTestStore(t)})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	if !strings.Contains(rec.Body.String(), `"events":[]`) {
		t.Errorf("empty list body = %s", rec.Body.String())
	}
}

func TestHub_PublishToSubscriber(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	ts := httptest.NewServer(New(Config{Hub: hub, Store: newTestStore(t)}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ev := event.New(time.Now(), event.Intruder, 0.88, image.Rect(0, 0, 10, 10), "", 0)
	hub.Publish(ev)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg feedMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON error = %v", err)
	}
	if msg.Type != "detection" || msg.Event.ID != ev.ID {
		t.Errorf("message = %+v", msg)
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < hubQueueLen*4; i++ {
			hub.Publish(event.Detection{ID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestLiveFeed(t *testing.T) {
	feed := NewLiveFeed()
	if feed.Watching() {
		t.Error("Watching() = true with no viewers")
	}

	ts := httptest.NewServer(New(Config{Feed: feed}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/stream error = %v", err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for !feed.Watching() {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	feed.Put([]byte("JPEGDATA"))

	buf := make([]byte, 256)
	var got strings.Builder
	for !strings.Contains(got.String(), "JPEGDATA") {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	if !strings.Contains(got.String(), "Content-Length: 8") {
		t.Errorf("stream part = %q", got.String())
	}
}

func TestServer_Serve(t *testing.T) {
	s := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
