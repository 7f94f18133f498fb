// Package server provides the local status API of the door camera: health,
// status, event history, snapshots, a live event feed and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/doorcam/internal/metrics"
	"github.com/ayusman/doorcam/internal/store"
)

// Switch arms and disarms alerting.
type Switch interface {
	Armed() bool
	SetArmed(bool) error
}

// Config holds the server configuration.
type Config struct {
	Store     *store.Store
	Metrics   *metrics.Metrics
	Hub       *Hub
	Feed      *LiveFeed
	Switch    Switch
	Status    func() any // extra status fields, merged under "loop"
	ImagesDir string     // snapshots outside this dir are never served
	Logger    zerolog.Logger
}

// Server represents the HTTP server of the door camera.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)

	if s.config.Switch != nil {
		s.mux.HandleFunc("/api/arm", s.handleArm(true))
		s.mux.HandleFunc("/api/disarm", s.handleArm(false))
	}

	// The websocket feed is registered before the events tree so that
	// /api/events/ws is never taken for an event ID.
	if s.config.Hub != nil {
		s.mux.Handle("/api/events/ws", s.config.Hub)
	}

	if s.config.Store != nil {
		events := NewEventHandler(s.config.Store, s.config.ImagesDir)
		s.mux.Handle("/api/events", events)
		s.mux.Handle("/api/events/", events)
	}

	if s.config.Feed != nil {
		s.mux.Handle("/api/stream", s.config.Feed)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

type statusResponse struct {
	Armed     bool              `json:"armed"`
	Uptime    string            `json:"uptime"`
	StartedAt time.Time         `json:"started_at"`
	Counters  *metrics.Snapshot `json:"counters,omitempty"`
	Loop      any               `json:"loop,omitempty"`
	Feed      *feedStatus       `json:"feed,omitempty"`
}

type feedStatus struct {
	Clients int `json:"clients"`
	Dropped int `json:"dropped"`
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Armed:     true,
		Uptime:    time.Since(s.start).Round(time.Second).String(),
		StartedAt: s.start,
	}
	if s.config.Switch != nil {
		resp.Armed = s.config.Switch.Armed()
	}
	if s.config.Metrics != nil {
		snap := s.config.Metrics.Snapshot()
		resp.Counters = &snap
	}
	if s.config.Status != nil {
		resp.Loop = s.config.Status()
	}
	if s.config.Hub != nil {
		resp.Feed = &feedStatus{Clients: s.config.Hub.Clients(), Dropped: s.config.Hub.Dropped()}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleArm handles POST /api/arm and /api/disarm.
func (s *Server) handleArm(armed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.config.Switch.SetArmed(armed); err != nil {
			s.config.Logger.Error().Err(err).Bool("armed", armed).Msg("failed to persist armed flag")
			writeError(w, http.StatusInternalServerError, "Failed to update armed state")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"armed": s.config.Switch.Armed()})
	}
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
