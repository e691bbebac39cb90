package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/client"
	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

const lockRecordPrefix = "employeeLoginLock:"

// LockCache persists login attempt records so a lockout survives a restart.
// Records are stored as JSON and validated on read; anything malformed is
// discarded instead of trusted.
type LockCache struct {
	client *client.RedisClient
}

func NewLockCache(client *client.RedisClient) *LockCache {
	return &LockCache{client: client}
}

func (c *LockCache) Load(ctx context.Context, principal string) (*models.LoginAttemptState, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := lockRecordPrefix + principal

	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, nil
		}
		util.Error("Failed to load lock record",
			zap.String("principal", principal),
			zap.Error(err))
		return nil, fmt.Errorf("failed to load lock record: %w", err)
	}

	var state models.LoginAttemptState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		util.Warn("Discarding unparseable lock record",
			zap.String("principal", principal),
			zap.Error(err))
		_ = c.client.Del(ctx, key)
		return nil, nil
	}

	return &state, nil
}

func (c *LockCache) Save(ctx context.Context, principal string, state *models.LoginAttemptState, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := lockRecordPrefix + principal

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal lock record: %w", err)
	}

	if err := c.client.Set(ctx, key, string(raw), ttl); err != nil {
		util.Error("Failed to save lock record",
			zap.String("principal", principal),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to save lock record: %w", err)
	}

	util.Debug("Lock record saved",
		zap.String("principal", principal),
		zap.Int("attempts", state.Attempts),
		zap.Duration("ttl", ttl))

	return nil
}

func (c *LockCache) Delete(ctx context.Context, principal string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := lockRecordPrefix + principal

	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to delete lock record",
			zap.String("principal", principal),
			zap.Error(err))
		return fmt.Errorf("failed to delete lock record: %w", err)
	}

	util.Debug("Lock record deleted",
		zap.String("principal", principal))

	return nil
}
