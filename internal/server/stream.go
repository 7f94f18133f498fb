package server

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// LiveFeed serves the most recent camera frame as an MJPEG stream. The
// detection loop owns the camera, so frames are pushed in with Put rather
// than read here.
type LiveFeed struct {
	mu      sync.Mutex
	frame   []byte
	seq     uint64
	updated chan struct{}
	viewers atomic.Int32
}

// NewLiveFeed creates an empty feed.
func NewLiveFeed() *LiveFeed {
	return &LiveFeed{updated: make(chan struct{})}
}

// Watching reports whether any client is connected, so callers can skip
// JPEG encoding when nobody is looking.
func (f *LiveFeed) Watching() bool {
	return f.viewers.Load() > 0
}

// Put replaces the current frame with a JPEG image.
func (f *LiveFeed) Put(jpeg []byte) {
	f.mu.Lock()
	f.frame = append(f.frame[:0:0], jpeg...)
	f.seq++
	close(f.updated)
	f.updated = make(chan struct{})
	f.mu.Unlock()
}

// Latest returns the current frame and its sequence number.
func (f *LiveFeed) Latest() ([]byte, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.seq
}

func (f *LiveFeed) wait() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updated
}

// ServeHTTP streams MJPEG frames to connected clients.
func (f *LiveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f.viewers.Add(1)
	defer f.viewers.Add(-1)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}

	var sent uint64
	for {
		frame, seq := f.Latest()
		if seq != sent && len(frame) > 0 {
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			if _, err := w.Write(frame); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")

			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
			sent = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-f.wait():
		case <-time.After(5 * time.Second):
		}
	}
}
