package postgres

import (
	"context"
	"fmt"

	"github.com/forqio/forq"
)

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM forq_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", forq.ErrSettingNotFound
		}
		return "", forq.Unavailable(fmt.Errorf("forq/postgres: get setting: %w", err))
	}
	return value, nil
}

// SetSetting persists a value for key, overwriting any previous one.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forq_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/postgres: set setting: %w", err))
	}
	return nil
}
