package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/client"
	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

const sessionPrefix = "frontdesk_session:"

// SessionCache holds the established session identity per user, written only
// after full authentication. Field names match what the back-office UI keeps
// in browser storage.
type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(client *client.RedisClient) *SessionCache {
	return &SessionCache{client: client}
}

func (c *SessionCache) Establish(ctx context.Context, identity *models.SessionIdentity, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := sessionPrefix + identity.UserID

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"userId", identity.UserID,
		"fname", identity.FirstName,
		"lname", identity.LastName,
		"userType", identity.UserType,
		"userLevel", identity.UserLevel,
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to establish session",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to establish session: %w", err)
	}

	util.Info("Session established",
		zap.String("user_id", identity.UserID),
		zap.String("user_type", identity.UserType),
		zap.Duration("ttl", ttl))

	return nil
}

func (c *SessionCache) Get(ctx context.Context, userID string) (*models.SessionIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields, err := c.client.HGetAll(ctx, sessionPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	level, _ := strconv.Atoi(fields["userLevel"])
	return &models.SessionIdentity{
		UserID:    fields["userId"],
		FirstName: fields["fname"],
		LastName:  fields["lname"],
		UserType:  fields["userType"],
		UserLevel: level,
	}, nil
}

func (c *SessionCache) Invalidate(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, sessionPrefix+userID); err != nil {
		util.Error("Failed to invalidate session",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	util.Info("Session invalidated",
		zap.String("user_id", userID))

	return nil
}
