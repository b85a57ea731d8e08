package users

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocknest/stocknest/internal/fieldperm"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/rbac"
	"github.com/stocknest/stocknest/internal/shared"
)

// Field-level gates for directory responses. id and full_name always ship;
// contact details and role membership require their field permission.
var (
	userFieldGates = fieldperm.Config{
		"email": "users.field.email",
		"phone": "users.field.phone",
		"roles": "users.field.roles",
	}
	userAlwaysInclude = map[string]struct{}{"id": {}, "full_name": {}}
)

// Handler wires the user directory endpoints.
type Handler struct {
	logger *slog.Logger
	repo   RepositoryPort
	guard  rbac.Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, repo RepositoryPort, guard rbac.Guard) *Handler {
	return &Handler{logger: logger, repo: repo, guard: guard}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("users.read"))
		r.Get("/", h.list)
		r.Get("/{userID}", h.get)
		r.Get("/me", h.me)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records := make([]map[string]any, 0, len(users))
	for _, u := range users {
		records = append(records, h.userRecord(r.Context(), u))
	}
	caller := shared.IdentityFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, fieldperm.FilterList(records, caller.Permissions, userFieldGates, userAlwaysInclude))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	u, err := h.repo.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.IdentityFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, fieldperm.Filter(h.userRecord(r.Context(), u), caller.Permissions, userFieldGates, userAlwaysInclude))
}

// me returns the caller's own entry unfiltered. A subject always sees its
// full profile regardless of field grants.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context())
	u, err := h.repo.Get(r.Context(), caller.Subject)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.userRecord(r.Context(), u))
}

// userRecord flattens a user to the filterable map shape. Role lookup
// failures degrade to an empty list rather than failing the read.
func (h *Handler) userRecord(ctx context.Context, u User) map[string]any {
	roles, err := h.repo.RoleNames(ctx, u.ID)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("role names lookup failed", slog.String("user_id", u.ID), slog.Any("error", err))
		}
		roles = nil
	}
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{
		"id":         u.ID,
		"email":      u.Email,
		"full_name":  u.FullName,
		"phone":      u.Phone,
		"roles":      roles,
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
