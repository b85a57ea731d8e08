package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocknest/stocknest/internal/audit"
	"github.com/stocknest/stocknest/internal/fieldperm"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/rbac"
	"github.com/stocknest/stocknest/internal/shared"
)

// Field-level gates for config responses. id and role_id always ship.
var (
	configFieldGates = fieldperm.Config{
		"role_name":           "ratelimits.field.role",
		"requests_per_minute": "ratelimits.field.rpm",
		"requests_per_hour":   "ratelimits.field.rph",
		"enabled":             "ratelimits.field.enabled",
	}
	configAlwaysInclude = map[string]struct{}{"id": {}, "role_id": {}}
)

// RoleDirectory resolves role names for config responses.
type RoleDirectory interface {
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
}

// Handler wires rate limit configuration endpoints. Every mutation
// invalidates the config cache so the new ceilings apply on the next
// request instead of after the TTL runs out.
type Handler struct {
	logger    *slog.Logger
	repo      RepositoryPort
	cache     *ConfigCache
	roles     RoleDirectory
	guard     rbac.Guard
	auditor   audit.Recorder
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, repo RepositoryPort, cache *ConfigCache, roles RoleDirectory, guard rbac.Guard, auditor audit.Recorder) *Handler {
	return &Handler{
		logger:    logger,
		repo:      repo,
		cache:     cache,
		roles:     roles,
		guard:     guard,
		auditor:   auditor,
		validator: validator.New(),
	}
}

// MountRoutes registers config administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("ratelimits.read"))
		r.Get("/", h.listConfigs)
		r.Get("/{configID}", h.getConfig)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("ratelimits.write"))
		r.Post("/", h.createConfig)
		r.Put("/{configID}", h.updateConfig)
		r.Delete("/{configID}", h.deleteConfig)
	})
}

type configPayload struct {
	RoleID            int64 `json:"role_id" validate:"required,gt=0"`
	RequestsPerMinute int   `json:"requests_per_minute" validate:"required,gt=0"`
	RequestsPerHour   int   `json:"requests_per_hour" validate:"required,gt=0"`
	Enabled           bool  `json:"enabled"`
}

type configUpdatePayload struct {
	RequestsPerMinute int  `json:"requests_per_minute" validate:"required,gt=0"`
	RequestsPerHour   int  `json:"requests_per_hour" validate:"required,gt=0"`
	Enabled           bool `json:"enabled"`
}

func (h *Handler) listConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.repo.ListConfigs(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records := make([]map[string]any, 0, len(configs))
	for _, cfg := range configs {
		records = append(records, h.configRecord(r.Context(), cfg))
	}
	caller := shared.IdentityFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, fieldperm.FilterList(records, caller.Permissions, configFieldGates, configAlwaysInclude))
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	cfg, err := h.repo.GetConfig(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.IdentityFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, fieldperm.Filter(h.configRecord(r.Context(), cfg), caller.Permissions, configFieldGates, configAlwaysInclude))
}

func (h *Handler) createConfig(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if !h.decode(w, r, &payload) {
		return
	}
	cfg, err := h.repo.CreateConfig(r.Context(), payload.RoleID, payload.RequestsPerMinute, payload.RequestsPerHour, payload.Enabled)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.cache.Invalidate()
	h.recordChange(r, "create", cfg)
	caller := shared.IdentityFromContext(r.Context())
	httpx.JSON(w, http.StatusCreated, fieldperm.Filter(h.configRecord(r.Context(), cfg), caller.Permissions, configFieldGates, configAlwaysInclude))
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var payload configUpdatePayload
	if !h.decode(w, r, &payload) {
		return
	}
	cfg, err := h.repo.UpdateConfig(r.Context(), id, payload.RequestsPerMinute, payload.RequestsPerHour, payload.Enabled)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.cache.Invalidate()
	h.recordChange(r, "update", cfg)
	caller := shared.IdentityFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, fieldperm.Filter(h.configRecord(r.Context(), cfg), caller.Permissions, configFieldGates, configAlwaysInclude))
}

func (h *Handler) deleteConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo.DeleteConfig(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.cache.Invalidate()
	h.recordChange(r, "delete", Config{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// configRecord flattens a config row for field filtering, enriched with the
// role name when it can be resolved.
func (h *Handler) configRecord(ctx context.Context, cfg Config) map[string]any {
	roleName := "Unknown"
	if h.roles != nil {
		if role, err := h.roles.GetRole(ctx, cfg.RoleID); err == nil {
			roleName = role.Name
		} else if !errors.Is(err, shared.ErrNotFound) && h.logger != nil {
			h.logger.Warn("resolve role name", slog.Int64("role_id", cfg.RoleID), slog.Any("error", err))
		}
	}
	return map[string]any{
		"id":                  cfg.ID,
		"role_id":             cfg.RoleID,
		"role_name":           roleName,
		"requests_per_minute": cfg.RequestsPerMinute,
		"requests_per_hour":   cfg.RequestsPerHour,
		"enabled":             cfg.Enabled,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "configID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid configID")
		return 0, false
	}
	return id, true
}

func (h *Handler) recordChange(r *http.Request, op string, cfg Config) {
	if h.auditor == nil {
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	h.auditor.Record(r.Context(), audit.Event{
		Subject: actor.Subject,
		Action:  audit.ActionConfigChanged,
		Path:    r.URL.Path,
		Meta:    map[string]any{"op": op, "config_id": cfg.ID, "role_id": cfg.RoleID},
	})
}
