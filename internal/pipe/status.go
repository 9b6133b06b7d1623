// internal/pipe/status.go
package pipe

import (
	"context"
	"time"

	"github.com/mwiater/flowpipe/internal/logging"
)

// Level is the severity of a status event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status is one progress update sent back to the chat front-end while a turn runs.
type Status struct {
	Level       Level
	Description string
	Done        bool
}

// Event renders the status in the OpenWebUI event shape.
func (s Status) Event() map[string]any {
	state := "in_progress"
	if s.Done {
		state = "complete"
	}
	return map[string]any{
		"type": "status",
		"data": map[string]any{
			"status":      state,
			"level":       string(s.Level),
			"description": s.Description,
			"done":        s.Done,
		},
	}
}

// Emitter receives status updates. A failing emitter never affects the response.
type Emitter interface {
	Emit(ctx context.Context, status Status) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, status Status) error

func (f EmitterFunc) Emit(ctx context.Context, status Status) error {
	return f(ctx, status)
}

const (
	statusInitializing = "🚀 Initializing Flowise request..."
	statusSending      = "🔄 Sending request to Flowise..."
	statusReceiving    = "✅ Receiving response from Flowise..."
	statusProcessing   = "📝 Processing response..."
	statusReady        = "✅ Response ready!"

	statusUnexpectedFormat = "⚠️ Unexpected response format - returning as string"
)

// statusReporter throttles the status events of a single turn. In-progress
// events closer than interval to the previous emit are dropped; done events
// always pass.
type statusReporter struct {
	emitter  Emitter
	enabled  bool
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

func newStatusReporter(emitter Emitter, enabled bool, interval time.Duration, now func() time.Time) *statusReporter {
	if now == nil {
		now = time.Now
	}
	return &statusReporter{
		emitter:  emitter,
		enabled:  enabled && emitter != nil,
		interval: interval,
		now:      now,
	}
}

func (r *statusReporter) info(ctx context.Context, description string) {
	r.report(ctx, Status{Level: LevelInfo, Description: description})
}

func (r *statusReporter) done(ctx context.Context, level Level, description string) {
	r.report(ctx, Status{Level: level, Description: description, Done: true})
}

func (r *statusReporter) report(ctx context.Context, status Status) {
	if !r.enabled {
		return
	}
	current := r.now()
	if !status.Done && !r.last.IsZero() && current.Sub(r.last) < r.interval {
		return
	}
	if err := r.emitter.Emit(ctx, status); err != nil {
		logging.LogDebug("status emit failed: %v", err)
		return
	}
	r.last = current
}
