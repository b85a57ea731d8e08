package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer persists audit events into audit_logs.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter returns a new Writer.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Write inserts the event.
func (w *Writer) Write(ctx context.Context, event Event) error {
	if w == nil || w.pool == nil {
		return errors.New("audit: writer not initialised")
	}
	if event.Action == "" {
		return errors.New("audit: event requires an action")
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	_, err = w.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, subject, action, path, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		event.ID, event.Subject, event.Action, event.Path, metaJSON, event.At)
	return err
}
