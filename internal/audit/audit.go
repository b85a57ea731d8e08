// Package audit records security-relevant events (authentication failures,
// authorization denials, throttle rejections, config changes). Recording is
// fire-and-forget: a failure to record never changes a request's outcome.
package audit

import (
	"context"
	"time"
)

// Event actions recorded by the access-control core.
const (
	ActionAuthFailed      = "auth.failed"
	ActionAccessDenied    = "access.denied"
	ActionThrottled       = "ratelimit.throttled"
	ActionConfigChanged   = "ratelimit.config_changed"
	ActionRoleChanged     = "rbac.role_changed"
	ActionGrantChanged    = "rbac.grant_changed"
)

// Event is a single audit record.
type Event struct {
	ID      string         `json:"id"`
	Subject string         `json:"subject"`
	Action  string         `json:"action"`
	Path    string         `json:"path,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	At      time.Time      `json:"at"`
}

// Recorder accepts events for eventual persistence. Implementations must not
// block the request path and must swallow their own failures.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// NopRecorder discards all events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) {}
