package sqlite

import (
	"context"
	"fmt"

	"github.com/forqio/forq"
)

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", forq.ErrSettingNotFound
		}
		return "", forq.Unavailable(fmt.Errorf("forq/sqlite: get setting: %w", err))
	}
	return value, nil
}

// SetSetting persists a value for key, overwriting any previous one.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/sqlite: set setting: %w", err))
	}
	return nil
}
