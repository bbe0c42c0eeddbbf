package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
)

// LibSQLSettings implements the Settings port on the settings table. Values
// are opaque strings; callers layer their own encoding on top.
type LibSQLSettings struct {
	db *sql.DB
}

// NewLibSQLSettings creates a settings store over an open database handle.
func NewLibSQLSettings(db *sql.DB) *LibSQLSettings {
	return &LibSQLSettings{db: db}
}

// Get returns the value for key and whether it exists.
func (s *LibSQLSettings) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM settings WHERE key = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *LibSQLSettings) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *LibSQLSettings) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM settings WHERE key = ?`

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

var _ ports.Settings = (*LibSQLSettings)(nil)
