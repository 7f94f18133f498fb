package e2e

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/doorcam/internal/app"
	"github.com/ayusman/doorcam/internal/capture"
	"github.com/ayusman/doorcam/internal/detector"
	"github.com/ayusman/doorcam/internal/event"
	"github.com/ayusman/doorcam/internal/eventlog"
	"github.com/ayusman/doorcam/internal/face"
	"github.com/ayusman/doorcam/internal/hook"
	"github.com/ayusman/doorcam/internal/metrics"
	"github.com/ayusman/doorcam/internal/notify"
	"github.com/ayusman/doorcam/internal/server"
	"github.com/ayusman/doorcam/internal/snapfile"
	"github.com/ayusman/doorcam/internal/snapshot"
	"github.com/ayusman/doorcam/internal/store"
	"github.com/ayusman/doorcam/internal/throttle"
)

type botCall struct {
	method   string
	hasPhoto bool
	text     string
}

// fakeBot accepts every Bot API call and records it.
func fakeBot(t *testing.T) (*httptest.Server, func() []botCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []botCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := botCall{method: filepath.Base(r.URL.Path)}
		r.ParseMultipartForm(8 << 20)
		c.text = r.FormValue("text") + r.FormValue("caption")
		if f, _, err := r.FormFile("photo"); err == nil {
			c.hasPhoto = true
			f.Close()
		}
		mu.Lock()
		calls = append(calls, c)
		mu.Unlock()
		io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []botCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]botCall(nil), calls...)
	}
}

func embedding(seed float64) []float64 {
	v := make([]float64, 128)
	for i := range v {
		v[i] = seed + float64(i)*0.001
	}
	return v
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts need a POSIX shell")
	}

	tmpDir := t.TempDir()
	detectionsDir := filepath.Join(tmpDir, "detections")
	facesDir := filepath.Join(tmpDir, "known_faces")
	hooksDir := filepath.Join(tmpDir, "hooks")

	// Gallery with one known person.
	if _, err := face.SaveEncoding(facesDir, "alice", embedding(0)); err != nil {
		t.Fatal(err)
	}
	gallery, err := face.LoadGallery(facesDir, zerolog.Nop())
	if err != nil || len(gallery) != 1 {
		t.Fatalf("LoadGallery() = %d, %v", len(gallery), err)
	}
	emb := face.NewMockEmbedder(embedding(7)) // a stranger
	identifier := face.NewIdentifier(emb, face.NewMatcher(gallery, face.DefaultThreshold))

	// A hook that records the classes it saw.
	marker := filepath.Join(tmpDir, "hook.log")
	hookDir := filepath.Join(hooksDir, "recorder")
	os.MkdirAll(hookDir, 0o755)
	manifest, _ := json.Marshal(hook.Manifest{Name: "recorder", Executable: "run.sh"})
	os.WriteFile(filepath.Join(hookDir, hook.ManifestFile), manifest, 0o644)
	os.WriteFile(filepath.Join(hookDir, "run.sh"),
		[]byte("#!/bin/sh\nINPUT=$(cat)\necho \"$INPUT\" | grep -o '\"event\":\"[A-Z]*\"' >> "+marker+"\necho '{\"success\":true}'\n"), 0o755)
	hooks := hook.NewManager(hooksDir)
	if err := hooks.Discover(); err != nil {
		t.Fatal(err)
	}

	st, err := store.New(filepath.Join(tmpDir, "doorcam.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	csv, err := eventlog.Open(filepath.Join(detectionsDir, "detections.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer csv.Close()

	bot, botCalls := fakeBot(t)
	m := metrics.New()
	hub := server.NewHub(zerolog.Nop())
	defer hub.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frames := make([]*gocv.Mat, 40)
	for i := range frames {
		frames[i] = &frame
	}
	cam := capture.NewMockCamera(frames, false)

	box := image.Rect(100, 50, 300, 400)
	det := detector.NewMockDetector()
	// Frame 0 has a stranger; frames 1.. keep a person in view. The long
	// cooldown means frame 0 is the only event until the gate reopens.
	det.SetDetections([]detector.Detection{detector.Person(0.82, box), {Class: "dog", Confidence: 0.99, Box: box}})

	notifier, err := notify.NewTelegram(notify.Options{Token: "123:SECRET", ChatID: "42", APIURL: bot.URL, SendImage: true, StartupMessages: true})
	if err != nil {
		t.Fatalf("NewTelegram() error = %v", err)
	}

	loop, err := app.New(app.Config{
		Camera:     cam,
		Detector:   detector.NewPersonFilter(det, 0.6),
		Notifier:   notifier,
		Throttle:   throttle.New(time.Hour, 0, nil),
		Identifier: identifier,
		Snapshots:  snapshot.NewWriter(detectionsDir),
		CSV:        csv,
		Store:      st,
		Hooks:      hook.NewRunner(hooks, hook.NewExecutor(hook.DefaultTimeout), zerolog.Nop()),
		Publisher:  hub,
		Metrics:    m,
		Startup:    &notify.StartupInfo{Device: "mock", Model: "yolov8n.pt", FaceRecognition: true, KnownFaces: 1},
		Logger:     zerolog.Nop(),

		FrameInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	srv := server.New(server.Config{
		Store:     st,
		Metrics:   m,
		Hub:       hub,
		Switch:    loop,
		Status:    func() any { return loop.Status() },
		ImagesDir: detectionsDir,
		Logger:    zerolog.Nop(),
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()
	for deadline := time.Now().Add(2 * time.Second); hub.Clients() == 0; {
		if time.Now().After(deadline) {
			t.Fatal("websocket subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var ev event.Detection

	t.Run("OneEventPerCooldown", func(t *testing.T) {
		list, err := st.Detections().List(10)
		if err != nil || len(list) != 1 {
			t.Fatalf("stored events = %d, %v", len(list), err)
		}
		ev = *list[0]
		if ev.Classification != event.Intruder || ev.Confidence != 0.82 || ev.Box != box {
			t.Errorf("event = %+v", ev)
		}
		if csv.Rows() != 1 {
			t.Errorf("csv rows = %d, want 1", csv.Rows())
		}
		if m.Throttled.Load() != 39 {
			t.Errorf("throttled = %d, want 39", m.Throttled.Load())
		}
	})

	t.Run("TelegramGotStartupAndPhoto", func(t *testing.T) {
		calls := botCalls()
		if len(calls) != 2 {
			t.Fatalf("bot calls = %+v", calls)
		}
		if calls[0].method != "sendMessage" || !strings.Contains(calls[0].text, `Enabled \(1 known\)`) {
			t.Errorf("startup call = %+v", calls[0])
		}
		if calls[1].method != "sendPhoto" || !calls[1].hasPhoto || !strings.Contains(calls[1].text, "INTRUDER ALERT") {
			t.Errorf("alert call = %+v", calls[1])
		}
	})

	t.Run("SnapshotOnDisk", func(t *testing.T) {
		if !snapfile.Match(filepath.Base(ev.ImagePath)) {
			t.Fatalf("image path = %q", ev.ImagePath)
		}
		if _, err := os.Stat(ev.ImagePath); err != nil {
			t.Errorf("snapshot missing: %v", err)
		}
	})

	t.Run("HookFired", func(t *testing.T) {
		data, err := os.ReadFile(marker)
		if err != nil {
			t.Fatalf("hook did not run: %v", err)
		}
		if strings.TrimSpace(string(data)) != `"event":"INTRUDER"` {
			t.Errorf("hook log = %q", data)
		}
	})

	t.Run("WebsocketFeed", func(t *testing.T) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Type  string          `json:"type"`
			Event event.Detection `json:"event"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Event.ID != ev.ID {
			t.Errorf("feed event = %s, want %s", msg.Event.ID, ev.ID)
		}
	})

	t.Run("API", func(t *testing.T) {
		client := ts.Client()

		resp, err := client.Get(ts.URL + "/api/events/" + ev.ID + "/image")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("image status = %d", resp.StatusCode)
		}

		resp, _ = client.Get(ts.URL + "/api/status")
		var status struct {
			Armed bool       `json:"armed"`
			Loop  app.Status `json:"loop"`
		}
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if !status.Armed || status.Loop.State != "COOLDOWN" || status.Loop.LastEvent == nil {
			t.Errorf("status = %+v", status)
		}

		resp, _ = client.Get(ts.URL + "/metrics")
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if !strings.Contains(string(body), `doorcam_events_total{classification="INTRUDER"} 1`) {
			t.Error("metrics did not count the event")
		}

		resp, _ = client.Post(ts.URL+"/api/disarm", "application/json", nil)
		resp.Body.Close()
		if loop.Armed() || st.Settings().Bool(store.KeyArmed, true) {
			t.Error("disarm was not applied and persisted")
		}
	})
}

func TestE2E_KnownFaceIsAllowed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	facesDir := filepath.Join(tmpDir, "known_faces")
	face.SaveEncoding(facesDir, "alice", embedding(0))
	gallery, _ := face.LoadGallery(facesDir, zerolog.Nop())

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	det := detector.NewMockDetector()
	det.SetDetections([]detector.Detection{detector.Person(0.9, image.Rect(10, 10, 200, 200))})

	csvPath := filepath.Join(tmpDir, "detections.csv")
	csv, _ := eventlog.Open(csvPath)
	n := notify.NewMock()

	loop, err := app.New(app.Config{
		Camera:        capture.NewMockCamera([]*gocv.Mat{&frame}, false),
		Detector:      detector.NewPersonFilter(det, 0.6),
		Notifier:      n,
		Throttle:      throttle.New(time.Second, 0, nil),
		Identifier:    face.NewIdentifier(face.NewMockEmbedder(embedding(0)), face.NewMatcher(gallery, 0.6)),
		CSV:           csv,
		FrameInterval: time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	csv.Close()

	f, _ := os.Open(csvPath)
	defer f.Close()
	records, _, err := eventlog.ReadAll(f)
	if err != nil || len(records) != 1 {
		t.Fatalf("records = %d, %v", len(records), err)
	}
	if records[0].Classification != event.Allowed || records[0].PersonName != "alice" {
		t.Errorf("record = %+v", records[0])
	}
	if n.DetectionCount() != 1 || n.Detections[0].PersonName != "alice" {
		t.Errorf("notifications = %+v", n.Detections)
	}
}
