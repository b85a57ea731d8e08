package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stocknest/stocknest/internal/audit"
	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
)

// Handler wires role and permission administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Guard
	auditor   audit.Recorder
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard Guard, auditor audit.Recorder) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		auditor:   auditor,
		validator: validator.New(),
	}
}

// MountRoles registers role administration routes.
func (h *Handler) MountRoles(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("roles.read"))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("roles.write"))
		r.Post("/", h.createRole)
		r.Put("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Post("/{roleID}/permissions", h.attachPermission)
		r.Delete("/{roleID}/permissions/{permissionID}", h.detachPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("roles.assign"))
		r.Post("/assignments", h.assignRole)
		r.Delete("/assignments", h.removeRole)
		r.Post("/store-assignments", h.assignStore)
		r.Delete("/store-assignments", h.removeStore)
	})
}

// MountPermissions registers permission administration routes.
func (h *Handler) MountPermissions(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("permissions.read"))
		r.Get("/", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission("permissions.write"))
		r.Post("/", h.createPermission)
		r.Delete("/{permissionID}", h.deletePermission)
	})
}

type rolePayload struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type permissionPayload struct {
	Key         string `json:"key" validate:"required,max=150"`
	Description string `json:"description" validate:"max=500"`
}

type attachPayload struct {
	PermissionID int64 `json:"permission_id" validate:"required,gt=0"`
}

type roleAssignmentPayload struct {
	UserID string `json:"user_id" validate:"required"`
	RoleID int64  `json:"role_id" validate:"required,gt=0"`
}

type storeAssignmentPayload struct {
	UserID  string `json:"user_id" validate:"required"`
	StoreID int64  `json:"store_id" validate:"required,gt=0"`
}

type roleResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{ID: role.ID, Name: role.Name, Description: role.Description})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleResponse{ID: role.ID, Name: role.Name, Description: role.Description})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if !h.decode(w, r, &payload) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), payload.Name, payload.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionRoleChanged, map[string]any{"op": "create", "role_id": role.ID})
	httpx.JSON(w, http.StatusCreated, roleResponse{ID: role.ID, Name: role.Name, Description: role.Description})
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var payload rolePayload
	if !h.decode(w, r, &payload) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, payload.Name, payload.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionRoleChanged, map[string]any{"op": "update", "role_id": role.ID})
	httpx.JSON(w, http.StatusOK, roleResponse{ID: role.ID, Name: role.Name, Description: role.Description})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionRoleChanged, map[string]any{"op": "delete", "role_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID, Key: p.Key, Description: p.Description})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if !h.decode(w, r, &payload) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), payload.Key, payload.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "create_permission", "permission_id": perm.ID})
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID, Key: perm.Key, Description: perm.Description})
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "delete_permission", "permission_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) attachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var payload attachPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.service.AttachPermission(r.Context(), roleID, payload.PermissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "attach", "role_id": roleID, "permission_id": payload.PermissionID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) detachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.DetachPermission(r.Context(), roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "detach", "role_id": roleID, "permission_id": permissionID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var payload roleAssignmentPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.service.AssignRole(r.Context(), payload.UserID, payload.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "assign_role", "user_id": payload.UserID, "role_id": payload.RoleID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	var payload roleAssignmentPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.service.RemoveRole(r.Context(), payload.UserID, payload.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "remove_role", "user_id": payload.UserID, "role_id": payload.RoleID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignStore(w http.ResponseWriter, r *http.Request) {
	var payload storeAssignmentPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.service.AssignStore(r.Context(), payload.UserID, payload.StoreID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "assign_store", "user_id": payload.UserID, "store_id": payload.StoreID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeStore(w http.ResponseWriter, r *http.Request) {
	var payload storeAssignmentPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.service.RemoveStore(r.Context(), payload.UserID, payload.StoreID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordChange(r, audit.ActionGrantChanged, map[string]any{"op": "remove_store", "user_id": payload.UserID, "store_id": payload.StoreID})
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) recordChange(r *http.Request, action string, meta map[string]any) {
	if h.auditor == nil {
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	h.auditor.Record(r.Context(), audit.Event{
		Subject: actor.Subject,
		Action:  action,
		Path:    r.URL.Path,
		Meta:    meta,
	})
}
