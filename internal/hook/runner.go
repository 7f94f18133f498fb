package hook

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ayusman/doorcam/internal/event"
)

// Runner fires every subscribed hook for an event, one after another.
type Runner struct {
	manager  *Manager
	executor *Executor
	log      zerolog.Logger
}

// NewRunner creates a Runner over discovered hooks.
func NewRunner(m *Manager, e *Executor, log zerolog.Logger) *Runner {
	return &Runner{manager: m, executor: e, log: log}
}

// Run executes hooks subscribed to ev and returns how many failed. Failures
// are logged and never stop the remaining hooks.
func (r *Runner) Run(ctx context.Context, ev event.Detection) int {
	req := &Request{Event: string(ev.Classification), Detection: ev}

	failed := 0
	for _, h := range r.manager.List() {
		if !h.Wants(ev.Classification) {
			continue
		}

		resp, err := r.executor.Execute(ctx, h, req)
		if err == nil && !resp.Success {
			msg := resp.Error
			if msg == "" {
				msg = "hook reported failure"
			}
			err = errors.New(msg)
		}
		if err != nil {
			failed++
			r.log.Warn().Err(err).Str("hook", h.Manifest.Name).Str("event_id", ev.ID).Msg("hook failed")
			continue
		}
		r.log.Debug().Str("hook", h.Manifest.Name).Str("event_id", ev.ID).Msg("hook ran")
	}
	return failed
}

// Len returns the number of discovered hooks.
func (r *Runner) Len() int {
	return len(r.manager.List())
}
