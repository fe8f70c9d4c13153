package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/chipheocrypto/c124/internal/domain"
)

const settingsKeyPrefix = "settings:"

type RedisSettingsCache struct {
	client *redis.Client
}

func NewRedisSettingsCache(client *redis.Client) *RedisSettingsCache {
	return &RedisSettingsCache{client: client}
}

func (c *RedisSettingsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSettingsCache) Get(ctx context.Context, storeID string) (*domain.Settings, bool, error) {
	val, err := c.client.Get(ctx, settingsKeyPrefix+storeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var settings domain.Settings
	if err := json.Unmarshal(val, &settings); err != nil {
		return nil, false, err
	}
	return &settings, true, nil
}

func (c *RedisSettingsCache) Set(ctx context.Context, settings *domain.Settings, ttl time.Duration) error {
	if settings == nil || settings.StoreID == "" {
		return nil
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, settingsKeyPrefix+settings.StoreID, payload, ttl).Err()
}

func (c *RedisSettingsCache) Delete(ctx context.Context, storeID string) error {
	return c.client.Del(ctx, settingsKeyPrefix+storeID).Err()
}
