package ratelimit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocknest/stocknest/internal/platform/httpx"
	"github.com/stocknest/stocknest/internal/shared"
)

// RepositoryPort defines persistence for rate limit configs.
type RepositoryPort interface {
	ConfigSource
	GetConfig(ctx context.Context, id int64) (Config, error)
	CreateConfig(ctx context.Context, roleID int64, perMinute, perHour int, enabled bool) (Config, error)
	UpdateConfig(ctx context.Context, id int64, perMinute, perHour int, enabled bool) (Config, error)
	DeleteConfig(ctx context.Context, id int64) error
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

const configColumns = `id, role_id, requests_per_minute, requests_per_hour, enabled, created_at, updated_at`

// ListConfigs returns all config rows ordered by role id.
func (r *Repository) ListConfigs(ctx context.Context) ([]Config, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+configColumns+` FROM rate_limit_configs ORDER BY role_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var configs []Config
	for rows.Next() {
		var cfg Config
		if err := rows.Scan(&cfg.ID, &cfg.RoleID, &cfg.RequestsPerMinute, &cfg.RequestsPerHour, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// GetConfig fetches a config row by id.
func (r *Repository) GetConfig(ctx context.Context, id int64) (Config, error) {
	var cfg Config
	err := r.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM rate_limit_configs WHERE id = $1`, id).
		Scan(&cfg.ID, &cfg.RoleID, &cfg.RequestsPerMinute, &cfg.RequestsPerHour, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, shared.ErrNotFound
	}
	return cfg, err
}

// CreateConfig inserts a config row. One row per role is enforced by a
// unique constraint on role_id.
func (r *Repository) CreateConfig(ctx context.Context, roleID int64, perMinute, perHour int, enabled bool) (Config, error) {
	var cfg Config
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rate_limit_configs (role_id, requests_per_minute, requests_per_hour, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+configColumns, roleID, perMinute, perHour, enabled).
		Scan(&cfg.ID, &cfg.RoleID, &cfg.RequestsPerMinute, &cfg.RequestsPerHour, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Config{}, httpx.ErrDuplicate
	}
	return cfg, err
}

// UpdateConfig updates a config row.
func (r *Repository) UpdateConfig(ctx context.Context, id int64, perMinute, perHour int, enabled bool) (Config, error) {
	var cfg Config
	err := r.pool.QueryRow(ctx, `
		UPDATE rate_limit_configs
		SET requests_per_minute = $2, requests_per_hour = $3, enabled = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+configColumns, id, perMinute, perHour, enabled).
		Scan(&cfg.ID, &cfg.RoleID, &cfg.RequestsPerMinute, &cfg.RequestsPerHour, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, shared.ErrNotFound
	}
	return cfg, err
}

// DeleteConfig removes a config row.
func (r *Repository) DeleteConfig(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rate_limit_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
