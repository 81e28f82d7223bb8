package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/synapse/internal/errors"
)

// GetValue returns the value stored under key.
// The second return is false when the key is absent.
func GetValue(ctx context.Context, q Querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewPersistence("read "+key, err)
	}
	return value, true, nil
}

// PutValue inserts or replaces the value stored under key.
func PutValue(ctx context.Context, q Querier, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
		return errors.NewPersistence("write "+key, err)
	}
	return nil
}

// DeleteValue removes key. Deleting an absent key is a no-op.
func DeleteValue(ctx context.Context, q Querier, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.NewPersistence("delete "+key, err)
	}
	return nil
}
