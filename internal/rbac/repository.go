package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
)

// RepositoryPort defines data access for roles, permissions and grants.
type RepositoryPort interface {
	RolesForSubject(ctx context.Context, subject string) ([]Role, error)
	PermissionKeysForSubject(ctx context.Context, subject string) ([]string, error)
	StoreIDsForSubject(ctx context.Context, subject string) ([]int64, error)
	RoleIDsForSubject(ctx context.Context, subject string) ([]int64, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, key, description string) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	AssignRole(ctx context.Context, subject string, roleID int64) error
	RemoveRole(ctx context.Context, subject string, roleID int64) error
	AssignStore(ctx context.Context, subject string, storeID int64) error
	RemoveStore(ctx context.Context, subject string, storeID int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// RolesForSubject joins user role assignments to roles.
func (r *Repository) RolesForSubject(ctx context.Context, subject string) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.id`, subject)
	if err != nil {
		return nil, resolution(err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, resolution(err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, resolution(err)
	}
	return roles, nil
}

// PermissionKeysForSubject unions permission keys across all assigned roles
// in a single aggregate query, so the guards never enumerate roles first.
func (r *Repository) PermissionKeysForSubject(ctx context.Context, subject string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.key
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY p.key`, subject)
	if err != nil {
		return nil, resolution(err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, resolution(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, resolution(err)
	}
	return keys, nil
}

// StoreIDsForSubject lists the stores a subject is assigned to.
func (r *Repository) StoreIDsForSubject(ctx context.Context, subject string) ([]int64, error) {
	return r.int64Column(ctx, `SELECT store_id FROM user_stores WHERE user_id = $1 ORDER BY store_id`, subject)
}

// RoleIDsForSubject lists assigned role ids, used by the rate limiter to pick
// a config without resolving full role rows.
func (r *Repository) RoleIDsForSubject(ctx context.Context, subject string) ([]int64, error) {
	return r.int64Column(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, subject)
}

func (r *Repository) int64Column(ctx context.Context, query, subject string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, query, subject)
	if err != nil {
		return nil, resolution(err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, resolution(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, resolution(err)
	}
	return ids, nil
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	return role, duplicateAware(err)
}

// UpdateRole updates an existing role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at`, id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, duplicateAware(err)
}

// DeleteRole removes a role by id.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, key, description FROM permissions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreatePermission inserts a new permission.
func (r *Repository) CreatePermission(ctx context.Context, key, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (key, description) VALUES ($1, $2)
		RETURNING id, key, description`, key, description).
		Scan(&p.ID, &p.Key, &p.Description)
	return p, duplicateAware(err)
}

// DeletePermission removes a permission by id.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AttachPermission grants a permission to a role.
func (r *Repository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

// DetachPermission revokes a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// AssignRole assigns a role to a subject.
func (r *Repository) AssignRole(ctx context.Context, subject string, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, subject, roleID)
	return err
}

// RemoveRole removes a role assignment from a subject.
func (r *Repository) RemoveRole(ctx context.Context, subject string, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, subject, roleID)
	return err
}

// AssignStore grants a subject access to a store.
func (r *Repository) AssignStore(ctx context.Context, subject string, storeID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_stores (user_id, store_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, subject, storeID)
	return err
}

// RemoveStore revokes a subject's access to a store.
func (r *Repository) RemoveStore(ctx context.Context, subject string, storeID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_stores WHERE user_id = $1 AND store_id = $2`, subject, storeID)
	return err
}

// resolution tags store connectivity failures on the resolve path so the
// guards map them to 503 instead of granting or denying on bad data.
func resolution(err error) error {
	return errors.Join(shared.ErrResolution, err)
}

func duplicateAware(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return httpx.ErrDuplicate
	}
	return err
}
