package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/forqio/forq"
)

// GetSetting returns the value for key, or ErrSettingNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	val, err := s.client.HGet(ctx, settingsKey, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", forq.ErrSettingNotFound
		}
		return "", forq.Unavailable(fmt.Errorf("forq/redis: get setting %q: %w", key, err))
	}
	return val, nil
}

// SetSetting creates or overwrites a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, settingsKey, key, value).Err(); err != nil {
		return forq.Unavailable(fmt.Errorf("forq/redis: set setting %q: %w", key, err))
	}
	return nil
}
