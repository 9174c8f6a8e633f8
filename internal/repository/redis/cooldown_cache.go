package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketplace-auth/internal/client"
)

const cooldownPrefix = "otp:cooldown:"

// CooldownCache holds one SETNX lock per ledger key for the length of the rate window.
type CooldownCache struct {
	client *client.RedisClient
	logger *zap.Logger
}

func NewCooldownCache(client *client.RedisClient, logger *zap.Logger) *CooldownCache {
	return &CooldownCache{client: client, logger: logger}
}

// Acquire reports false when the key is already held.
func (c *CooldownCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := c.client.SetNX(ctx, cooldownPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl)
	if err != nil {
		c.logger.Error("Failed to set cooldown lock", zap.String("key", key), zap.Duration("ttl", ttl), zap.Error(err))
		return false, fmt.Errorf("failed to set cooldown lock: %w", err)
	}
	if !ok {
		c.logger.Debug("Cooldown lock held", zap.String("key", key))
	}
	return ok, nil
}

func (c *CooldownCache) Release(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, cooldownPrefix+key); err != nil {
		return fmt.Errorf("failed to release cooldown lock: %w", err)
	}
	return nil
}

// Remaining returns how long the key stays held; zero when it is free.
func (c *CooldownCache) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl, err := c.client.TTL(ctx, cooldownPrefix+key)
	if err != nil {
		return 0, fmt.Errorf("failed to read cooldown ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
