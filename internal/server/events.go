package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ayusman/doorcam/internal/event"
	"github.com/ayusman/doorcam/internal/store"
)

// maxListLimit caps ?limit= on the event list.
const maxListLimit = 500

// EventHandler serves the detection history.
type EventHandler struct {
	store     *store.Store
	imagesDir string
}

// NewEventHandler creates a new EventHandler. Snapshot files are only served
// from imagesDir; an empty imagesDir disables the image endpoint.
func NewEventHandler(s *store.Store, imagesDir string) *EventHandler {
	return &EventHandler{store: s, imagesDir: imagesDir}
}

// ServeHTTP routes /api/events, /api/events/{id} and /api/events/{id}/image.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/events")
	path = strings.Trim(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		h.get(w, id)
	case "image":
		h.image(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type listEventsResponse struct {
	Events []*event.Detection `json:"events"`
	Count  int                `json:"count"`
}

// list handles GET /api/events?limit=N.
func (h *EventHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	events, err := h.store.Detections().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if events == nil {
		events = []*event.Detection{}
	}

	writeJSON(w, http.StatusOK, listEventsResponse{Events: events, Count: len(events)})
}

func (h *EventHandler) lookup(w http.ResponseWriter, id string) (*event.Detection, bool) {
	d, err := h.store.Detections().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Event not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get event")
		return nil, false
	}
	return d, true
}

// get handles GET /api/events/{id}.
func (h *EventHandler) get(w http.ResponseWriter, id string) {
	d, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// image handles GET /api/events/{id}/image.
func (h *EventHandler) image(w http.ResponseWriter, r *http.Request, id string) {
	d, ok := h.lookup(w, id)
	if !ok {
		return
	}
	if d.ImagePath == "" || !h.servable(d.ImagePath) {
		writeError(w, http.StatusNotFound, "No image for event")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, d.ImagePath)
}

func (h *EventHandler) servable(path string) bool {
	if h.imagesDir == "" {
		return false
	}
	root, err := filepath.Abs(h.imagesDir)
	if err != nil {
		return false
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
