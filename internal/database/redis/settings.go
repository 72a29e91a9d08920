// Package redis keeps companion settings in Redis via rueidis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/companion/internal/config"
	"github.com/kozaktomas/companion/internal/database"
	"github.com/redis/rueidis"
)

// Compile-time check: SettingsStore implements database.SettingsStore.
var _ database.SettingsStore = (*SettingsStore)(nil)

const keyPrefix = "companion:settings:"

// SettingsStore stores per-owner settings in one Redis hash per owner.
type SettingsStore struct {
	client rueidis.Client
}

// NewSettingsStore connects to Redis.
func NewSettingsStore(cfg *config.RedisConfig) (*SettingsStore, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &SettingsStore{client: client}, nil
}

// NewSettingsStoreForTest wraps an existing client.
func NewSettingsStoreForTest(c rueidis.Client) *SettingsStore {
	return &SettingsStore{client: c}
}

// Ping checks connectivity.
func (s *SettingsStore) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func settingsKey(ownerID string) string {
	return keyPrefix + ownerID
}

// Close shuts down the client.
func (s *SettingsStore) Close() {
	s.client.Close()
}

// GetSetting returns the stored value and whether it exists.
func (s *SettingsStore) GetSetting(ctx context.Context, ownerID, key string) (string, bool, error) {
	cmd := s.client.B().Hget().Key(settingsKey(ownerID)).Field(key).Build()
	value, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// SetSetting stores a value.
func (s *SettingsStore) SetSetting(ctx context.Context, ownerID, key, value string) error {
	cmd := s.client.B().Hset().Key(settingsKey(ownerID)).FieldValue().FieldValue(key, value).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// Register makes the store the active settings backend.
func Register(s *SettingsStore) {
	database.RegisterSettingsStore(func() database.SettingsStore { return s })
}
