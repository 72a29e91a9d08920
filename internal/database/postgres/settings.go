package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SettingsRepository keeps per-owner settings in PostgreSQL.
type SettingsRepository struct {
	pool *Pool
}

// NewSettingsRepository creates a new PostgreSQL settings repository.
func NewSettingsRepository(pool *Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetSetting returns the stored value and whether it exists.
func (r *SettingsRepository) GetSetting(ctx context.Context, ownerID, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE owner_id = $1 AND key = $2`, ownerID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// SetSetting upserts a value.
func (r *SettingsRepository) SetSetting(ctx context.Context, ownerID, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (owner_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, ownerID, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}
