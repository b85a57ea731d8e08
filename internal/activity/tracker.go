package activity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stocknest/stocknest/internal/shared"
)

const keyPrefix = "activity:last_seen:"

// DefaultTTL is how long a subject counts as active after its last request.
const DefaultTTL = 30 * time.Minute

// Tracker records the last-seen timestamp per subject in Redis. A nil tracker
// or a tracker without a client is a no-op, so callers never need to guard.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	clock  func() time.Time
}

// NewTracker instantiates the tracker.
func NewTracker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{client: client, ttl: ttl, logger: logger, clock: time.Now}
}

// SetClockForTest replaces the time source.
func (t *Tracker) SetClockForTest(clock func() time.Time) {
	t.clock = clock
}

// Touch stamps the subject as seen now. Failures are logged and swallowed;
// presence tracking must never fail a request.
func (t *Tracker) Touch(ctx context.Context, subject string) {
	if t == nil || t.client == nil || subject == "" {
		return
	}
	stamp := t.clock().UTC().Format(time.RFC3339)
	if err := t.client.Set(ctx, keyPrefix+subject, stamp, t.ttl).Err(); err != nil {
		if t.logger != nil {
			t.logger.Warn("activity touch failed", slog.String("subject", subject), slog.Any("error", err))
		}
	}
}

// LastSeen returns the last recorded timestamp for a subject. The boolean
// reports whether the subject was seen within the TTL.
func (t *Tracker) LastSeen(ctx context.Context, subject string) (time.Time, bool, error) {
	if t == nil || t.client == nil {
		return time.Time{}, false, nil
	}
	raw, err := t.client.Get(ctx, keyPrefix+subject).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	stamp, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return stamp, true, nil
}

// ActiveCount scans for live subjects. Used by the health and directory
// surfaces for a coarse "online now" figure.
func (t *Tracker) ActiveCount(ctx context.Context) (int64, error) {
	if t == nil || t.client == nil {
		return 0, nil
	}
	var count int64
	iter := t.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// Middleware touches the subject behind each authenticated request. It runs
// after the guard, so it reads the identity the guard stored in the context.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := shared.IdentityFromContext(r.Context()); !id.IsAnonymous() {
			t.Touch(r.Context(), id.Subject)
		}
		next.ServeHTTP(w, r)
	})
}
