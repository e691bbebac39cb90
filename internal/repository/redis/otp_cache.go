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

// Key layout mirrors the browser session-storage keys the back-office UI
// reads: hash, email, and expiry live under separate keys per user. The
// account snapshot lives under its own key with a longer TTL: the challenge
// expiring must not end the pending login, only force a resend.
const (
	otpHashPrefix    = "login_otp_hash:"
	otpEmailPrefix   = "login_otp_email:"
	otpExpiryPrefix  = "login_otp_expiry:"
	otpAccountPrefix = "login_otp_account:"
	otpResendPrefix  = "login_otp_resend:"
)

// OTPCache stores the live OTP challenge for an in-progress login. At most
// one challenge exists per user: every write replaces whatever was there,
// which is what makes a resend supersede the previous code.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

// SaveChallenge writes the challenge keys with the challenge TTL and the
// pending account with pendingTTL. The raw code is never part of the payload.
func (c *OTPCache) SaveChallenge(ctx context.Context, userID string, challenge *models.OtpChallenge, account *models.Account, ttl, pendingTTL time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	accountJSON, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal pending account: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, otpHashPrefix+userID, challenge.CodeHash, ttl)
	pipe.Set(ctx, otpEmailPrefix+userID, challenge.Email, ttl)
	pipe.Set(ctx, otpExpiryPrefix+userID, challenge.ExpiresAt, ttl)
	pipe.Set(ctx, otpAccountPrefix+userID, string(accountJSON), pendingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to save OTP challenge",
			zap.String("user_id", userID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to save OTP challenge: %w", err)
	}

	util.Debug("OTP challenge saved",
		zap.String("user_id", userID),
		zap.Duration("ttl", ttl))

	return nil
}

// LoadChallenge returns the live challenge and pending account, or (nil, nil)
// when none exists. A challenge with missing or unparseable pieces is cleared
// and treated as absent.
func (c *OTPCache) LoadChallenge(ctx context.Context, userID string) (*models.OtpChallenge, *models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	hash, err := c.client.Get(ctx, otpHashPrefix+userID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load OTP challenge: %w", err)
	}

	email, emailErr := c.client.Get(ctx, otpEmailPrefix+userID)
	expiryRaw, expiryErr := c.client.Get(ctx, otpExpiryPrefix+userID)
	accountRaw, accountErr := c.client.Get(ctx, otpAccountPrefix+userID)
	if emailErr != nil || expiryErr != nil || accountErr != nil {
		util.Warn("Clearing partial OTP challenge",
			zap.String("user_id", userID))
		_ = c.DeleteChallenge(ctx, userID)
		return nil, nil, nil
	}

	var expiresAt int64
	if _, err := fmt.Sscanf(expiryRaw, "%d", &expiresAt); err != nil {
		util.Warn("Clearing OTP challenge with unparseable expiry",
			zap.String("user_id", userID),
			zap.Error(err))
		_ = c.DeleteChallenge(ctx, userID)
		return nil, nil, nil
	}

	var account models.Account
	if err := json.Unmarshal([]byte(accountRaw), &account); err != nil {
		util.Warn("Clearing OTP challenge with unparseable account",
			zap.String("user_id", userID),
			zap.Error(err))
		_ = c.DeletePending(ctx, userID)
		return nil, nil, nil
	}

	challenge := &models.OtpChallenge{
		CodeHash:  hash,
		Email:     email,
		ExpiresAt: expiresAt,
	}
	return challenge, &account, nil
}

// LoadPendingAccount returns the account snapshot for an in-progress login,
// nil when none. The snapshot survives challenge expiry so a resend can
// re-issue without another password round trip.
func (c *OTPCache) LoadPendingAccount(ctx context.Context, userID string) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, otpAccountPrefix+userID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load pending account: %w", err)
	}

	var account models.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		util.Warn("Discarding unparseable pending account",
			zap.String("user_id", userID),
			zap.Error(err))
		_ = c.client.Del(ctx, otpAccountPrefix+userID)
		return nil, nil
	}
	return &account, nil
}

// DeleteChallenge destroys the challenge fields but leaves the pending
// account in place; this is the expiry path.
func (c *OTPCache) DeleteChallenge(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.client.Del(ctx,
		otpHashPrefix+userID,
		otpEmailPrefix+userID,
		otpExpiryPrefix+userID,
	)
	if err != nil {
		util.Error("Failed to delete OTP challenge",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to delete OTP challenge: %w", err)
	}

	util.Debug("OTP challenge deleted",
		zap.String("user_id", userID))

	return nil
}

// DeletePending destroys the whole pending login: challenge fields and the
// account snapshot. Called once the login resolves.
func (c *OTPCache) DeletePending(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.client.Del(ctx,
		otpHashPrefix+userID,
		otpEmailPrefix+userID,
		otpExpiryPrefix+userID,
		otpAccountPrefix+userID,
	)
	if err != nil {
		util.Error("Failed to delete pending login",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to delete pending login: %w", err)
	}

	util.Debug("Pending login deleted",
		zap.String("user_id", userID))

	return nil
}

// SetResendCooldown arms the resend cooldown window.
func (c *OTPCache) SetResendCooldown(ctx context.Context, userID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, otpResendPrefix+userID, "1", ttl); err != nil {
		util.Error("Failed to set resend cooldown",
			zap.String("user_id", userID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to set resend cooldown: %w", err)
	}
	return nil
}

// ResendRemaining reports how long until resend is allowed again, zero when
// the cooldown has elapsed.
func (c *OTPCache) ResendRemaining(ctx context.Context, userID string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ttl, err := c.client.TTL(ctx, otpResendPrefix+userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read resend cooldown: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
