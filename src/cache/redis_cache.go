package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

const tierKeyPrefix = "context_tier:"

// RedisCache owns the shared Redis connection and stores tier snapshots so
// every instance of the service sees the same cached context.
type RedisCache struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisCache(cfg *config.RedisConfig, retention time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client:    client,
		retention: retention,
	}, nil
}

func tierKey(userID string, tier models.CacheTier) string {
	return tierKeyPrefix + userID + ":" + string(tier)
}

func (c *RedisCache) Get(ctx context.Context, userID string, tier models.CacheTier) (*models.TierSnapshot, error) {
	val, err := c.client.Get(ctx, tierKey(userID, tier)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tier snapshot: %w", err)
	}

	var snapshot models.TierSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tier snapshot: %w", err)
	}

	return &snapshot, nil
}

// Set keeps the snapshot for the retention period, which is longer than any
// tier TTL so a stale payload can still serve as a fallback.
func (c *RedisCache) Set(ctx context.Context, userID string, tier models.CacheTier, snapshot *models.TierSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal tier snapshot: %w", err)
	}

	return c.client.Set(ctx, tierKey(userID, tier), data, c.retention).Err()
}

func (c *RedisCache) Delete(ctx context.Context, userID string, tier models.CacheTier) error {
	return c.client.Del(ctx, tierKey(userID, tier)).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client for direct access
func (c *RedisCache) GetClient() *redis.Client {
	return c.client
}
