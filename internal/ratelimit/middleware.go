package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/stocknest/stocknest/internal/audit"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
	"github.com/stocknest/stocknest/internal/token"
)

// RoleLookup resolves the role ids assigned to a subject.
type RoleLookup interface {
	RoleIDs(ctx context.Context, subject string) ([]int64, error)
}

// DefaultExcludedPaths are never throttled.
var DefaultExcludedPaths = []string{"/", "/healthz", "/metrics"}

// Limiter throttles identified principals. Anonymous requests and excluded
// paths pass through untouched, and any internal fault fails open: throttling
// is a protective control, not a security one, and must never take the
// service down with it.
type Limiter struct {
	validator *token.Validator
	roles     RoleLookup
	cache     *ConfigCache
	store     *Store
	logger    *slog.Logger
	auditor   audit.Recorder
	excluded  map[string]struct{}
}

// NewLimiter constructs a Limiter.
func NewLimiter(validator *token.Validator, roles RoleLookup, cache *ConfigCache, store *Store, logger *slog.Logger, auditor audit.Recorder, excludedPaths []string) *Limiter {
	if len(excludedPaths) == 0 {
		excludedPaths = DefaultExcludedPaths
	}
	excluded := make(map[string]struct{}, len(excludedPaths))
	for _, p := range excludedPaths {
		excluded[p] = struct{}{}
	}
	return &Limiter{
		validator: validator,
		roles:     roles,
		cache:     cache,
		store:     store,
		logger:    logger,
		auditor:   auditor,
		excluded:  excluded,
	}
}

type verdict struct {
	config  Config
	usage   Usage
	allowed bool
	retry   int
}

// Middleware intercepts requests after authentication-aware routing.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, skip := l.excluded[r.URL.Path]; skip {
			next.ServeHTTP(w, r)
			return
		}
		id, ok := l.validator.ValidateOptional(r)
		if !ok {
			// Only identified principals are throttled here; anonymous
			// traffic is covered by the per-IP baseline in the outer stack.
			next.ServeHTTP(w, r)
			return
		}
		// Downstream middleware gets the minimal identity; the guards
		// overwrite it with an enriched one after authorization.
		r = r.WithContext(shared.ContextWithIdentity(r.Context(), id))

		v, err := l.decide(r.Context(), id.Subject)
		if err != nil {
			if l.logger != nil {
				l.logger.Error("rate limiter fault, allowing request", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		if v == nil {
			next.ServeHTTP(w, r)
			return
		}

		if !v.allowed {
			if l.auditor != nil {
				l.auditor.Record(r.Context(), audit.Event{
					Subject: id.Subject,
					Action:  audit.ActionThrottled,
					Path:    r.URL.Path,
					Meta:    map[string]any{"retry_after": v.retry},
				})
			}
			detail := fmt.Sprintf("Rate limit exceeded. Max %d requests per minute.", v.config.RequestsPerMinute)
			if v.retry > int(minuteWindow.Seconds()) {
				detail = fmt.Sprintf("Rate limit exceeded. Max %d requests per hour.", v.config.RequestsPerHour)
			}
			httpx.TooManyRequests(w, detail, v.retry)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit-Minute", strconv.Itoa(v.config.RequestsPerMinute))
		h.Set("X-RateLimit-Limit-Hour", strconv.Itoa(v.config.RequestsPerHour))
		h.Set("X-RateLimit-Remaining-Minute", strconv.Itoa(remaining(v.config.RequestsPerMinute, v.usage.Minute)))
		h.Set("X-RateLimit-Remaining-Hour", strconv.Itoa(remaining(v.config.RequestsPerHour, v.usage.Hour)))
		next.ServeHTTP(w, r)
	})
}

// decide resolves the effective config for a subject and runs the window
// check. A nil verdict with nil error means the subject is unthrottled.
func (l *Limiter) decide(ctx context.Context, subject string) (*verdict, error) {
	roleIDs, err := l.roles.RoleIDs(ctx, subject)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	config, found, err := l.effectiveConfig(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	if !found || !config.Enabled {
		return nil, nil
	}

	usage, allowed, retry := l.store.Allow(subject, config.RequestsPerMinute, config.RequestsPerHour)
	return &verdict{config: config, usage: usage, allowed: allowed, retry: retry}, nil
}

// effectiveConfig picks the single config row with the highest per-minute
// ceiling across the subject's roles. The winning row is applied wholesale,
// both ceilings together, so the effective pair always matches a row an
// operator actually configured.
func (l *Limiter) effectiveConfig(ctx context.Context, roleIDs []int64) (Config, bool, error) {
	var best Config
	found := false
	for _, roleID := range roleIDs {
		config, ok, err := l.cache.Get(ctx, roleID)
		if err != nil {
			return Config{}, false, err
		}
		if !ok {
			continue
		}
		if !found || config.RequestsPerMinute > best.RequestsPerMinute {
			best = config
			found = true
		}
	}
	return best, found, nil
}

func remaining(limit, count int) int {
	r := limit - count - 1
	if r < 0 {
		return 0
	}
	return r
}
