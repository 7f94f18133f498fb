package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/doorcam/internal/event"
)

const (
	writeWait   = 5 * time.Second
	hubQueueLen = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Hub pushes new detection events to websocket subscribers.
type Hub struct {
	log     zerolog.Logger
	queue   chan event.Detection
	done    chan struct{}
	once    sync.Once
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	dropped int
}

// NewHub creates a Hub and starts its broadcaster.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		log:     log,
		queue:   make(chan event.Detection, hubQueueLen),
		done:    make(chan struct{}),
		clients: make(map[*websocket.Conn]bool),
	}
	go h.broadcast()
	return h
}

// Publish queues ev for delivery. It never blocks the caller; when the queue
// is full the event is dropped for websocket subscribers only.
func (h *Hub) Publish(ev event.Detection) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.queue <- ev:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded on a full queue.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close stops the broadcaster and disconnects every subscriber.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
		h.mu.Unlock()
	})
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

type feedMessage struct {
	Type  string          `json:"type"`
	Event event.Detection `json:"event"`
}

// broadcast sends queued events to all connected clients.
func (h *Hub) broadcast() {
	for {
		var ev event.Detection
		select {
		case <-h.done:
			return
		case ev = <-h.queue:
		}

		msg, err := json.Marshal(feedMessage{Type: "detection", Event: ev})
		if err != nil {
			continue
		}

		h.mu.RLock()
		var failed []*websocket.Conn
		for conn := range h.clients {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				failed = append(failed, conn)
			}
		}
		h.mu.RUnlock()

		for _, conn := range failed {
			h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("dropping websocket subscriber")
			conn.Close()
		}
	}
}
