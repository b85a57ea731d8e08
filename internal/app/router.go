package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stocknest/stocknest/internal/activity"
	"github.com/stocknest/stocknest/internal/observability"
	"github.com/stocknest/stocknest/internal/ratelimit"
	"github.com/stocknest/stocknest/internal/rbac"
	"github.com/stocknest/stocknest/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Limiter          *ratelimit.Limiter
	Tracker          *activity.Tracker
	RBACHandler      *rbac.Handler
	RateLimitHandler *ratelimit.Handler
	UsersHandler     *users.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults. Order matters:
// the limiter runs before any guard so a throttled caller never reaches the
// authorization store, and the activity tracker runs inside each mounted
// group so it sees the enriched identity.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	if params.Limiter != nil {
		r.Use(params.Limiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mount := func(pattern string, fn func(chi.Router)) {
		r.Route(pattern, func(r chi.Router) {
			if params.Tracker != nil {
				r.Use(params.Tracker.Middleware)
			}
			fn(r)
		})
	}

	if params.RBACHandler != nil {
		mount("/roles", params.RBACHandler.MountRoles)
		mount("/permissions", params.RBACHandler.MountPermissions)
	}
	if params.RateLimitHandler != nil {
		mount("/ratelimits", params.RateLimitHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		mount("/users", params.UsersHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
