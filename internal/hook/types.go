// Package hook runs user executables when a detection event is emitted.
//
// Each hook lives in its own subdirectory of the hooks dir with a hook.json
// manifest. The executor sends a Request as JSON on stdin and expects a
// Response as JSON on stdout.
package hook

import (
	"encoding/json"
	"strings"

	"github.com/ayusman/doorcam/internal/event"
)

// ManifestFile is the manifest file name inside a hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook.
type Manifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"` // ALLOWED, INTRUDER or "*"; empty means all
	TimeoutMs   int      `json:"timeoutMs,omitempty"`
}

// Request is sent to a hook on stdin.
type Request struct {
	Event     string          `json:"event"`
	Detection event.Detection `json:"detection"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Wants reports whether the hook subscribed to events of class c.
func (h *Hook) Wants(c event.Classification) bool {
	if len(h.Manifest.Events) == 0 {
		return true
	}
	for _, e := range h.Manifest.Events {
		if e == "*" || strings.EqualFold(e, string(c)) {
			return true
		}
	}
	return false
}
