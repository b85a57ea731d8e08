package rbac

import (
	"context"
	"errors"
	"strings"
)

// Service orchestrates RBAC operations and acts as the role/permission
// resolver for the access guards. Resolution is deliberately uncached:
// a revoked grant must stop working on the very next request.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Roles returns the names of roles assigned to a subject.
func (s *Service) Roles(ctx context.Context, subject string) ([]string, error) {
	roles, err := s.repo.RolesForSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

// Permissions returns the union of permission keys granted through the
// subject's roles.
func (s *Service) Permissions(ctx context.Context, subject string) ([]string, error) {
	return s.repo.PermissionKeysForSubject(ctx, subject)
}

// StoreIDs returns the store scope of a subject.
func (s *Service) StoreIDs(ctx context.Context, subject string) ([]int64, error) {
	return s.repo.StoreIDsForSubject(ctx, subject)
}

// RoleIDs returns the ids of roles assigned to a subject.
func (s *Service) RoleIDs(ctx context.Context, subject string) ([]int64, error) {
	return s.repo.RoleIDsForSubject(ctx, subject)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreatePermission inserts a new permission key.
func (s *Service) CreatePermission(ctx context.Context, key, description string) (Permission, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return Permission{}, errors.New("rbac: permission key required")
	}
	return s.repo.CreatePermission(ctx, key, strings.TrimSpace(description))
}

// DeletePermission removes a permission.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	return s.repo.DeletePermission(ctx, id)
}

// AttachPermission grants a permission to a role.
func (s *Service) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	return s.repo.AttachPermission(ctx, roleID, permissionID)
}

// DetachPermission revokes a permission from a role.
func (s *Service) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	return s.repo.DetachPermission(ctx, roleID, permissionID)
}

// AssignRole assigns a role to a subject.
func (s *Service) AssignRole(ctx context.Context, subject string, roleID int64) error {
	return s.repo.AssignRole(ctx, subject, roleID)
}

// RemoveRole removes a role from a subject.
func (s *Service) RemoveRole(ctx context.Context, subject string, roleID int64) error {
	return s.repo.RemoveRole(ctx, subject, roleID)
}

// AssignStore grants a subject access to a store.
func (s *Service) AssignStore(ctx context.Context, subject string, storeID int64) error {
	return s.repo.AssignStore(ctx, subject, storeID)
}

// RemoveStore revokes a subject's access to a store.
func (s *Service) RemoveStore(ctx context.Context, subject string, storeID int64) error {
	return s.repo.RemoveStore(ctx, subject, storeID)
}
