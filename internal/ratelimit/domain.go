// Package ratelimit throttles request volume per authenticated subject using
// sliding minute and hour windows with per-role configurable ceilings.
package ratelimit

import "time"

// Config is one rate limit row, one per role. Operators edit these at
// runtime; reads go through the ConfigCache.
type Config struct {
	ID                int64
	RoleID            int64
	RequestsPerMinute int
	RequestsPerHour   int
	Enabled           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Window durations checked by the limiter, minute first.
const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)
