package throttle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

// Store persists one attempt record per principal so a lock survives a
// service restart. A ttl of zero means the record has no expiry; when a lock
// is set the ttl covers the remaining lock window so the backing store can
// clean up on its own.
type Store interface {
	Load(ctx context.Context, principal string) (*models.LoginAttemptState, error)
	Save(ctx context.Context, principal string, state *models.LoginAttemptState, ttl time.Duration) error
	Delete(ctx context.Context, principal string) error
}

// LockedError is returned while the principal is locked out. The remaining
// whole seconds ride along so callers can surface a countdown.
type LockedError struct {
	SecondsRemaining int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d seconds", e.SecondsRemaining)
}

// Config tunes the machine without changing its transitions.
type Config struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// Throttle locks a principal out of login after MaxAttempts consecutive
// failures. States are Open (attempts below the cap) and Locked (lock
// deadline in the future); the only way back to Open is the deadline
// passing, which also resets the counter.
type Throttle struct {
	store  Store
	cfg    Config
	logger *zap.Logger

	now func() time.Time
}

func New(store Store, cfg Config, logger *zap.Logger) *Throttle {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 30 * time.Second
	}
	return &Throttle{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (t *Throttle) SetClock(now func() time.Time) {
	t.now = now
}

// Check rejects with a LockedError while the principal is locked. It must run
// before any network call so a locked submission never reaches the backend.
// A stale record (lock deadline already passed) is deleted on sight, which is
// also how a lock left over from a previous process run gets released.
func (t *Throttle) Check(ctx context.Context, principal string) error {
	state, err := t.load(ctx, principal)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	now := t.now()
	if state.Locked(now) {
		return &LockedError{SecondsRemaining: state.RemainingSeconds(now)}
	}

	if state.LockUntil > 0 {
		// Lock fully expired: clear the record, counter resets with it.
		if err := t.store.Delete(ctx, principal); err != nil {
			return fmt.Errorf("failed to clear expired lock: %w", err)
		}
		t.logger.Info("Login lock expired and cleared",
			util.String("principal", principal),
		)
	}
	return nil
}

// RecordFailure bumps the attempt counter and, at the cap, transitions to
// Locked. It must be called only after a definitive rejection from the
// backend, never on transport failures. Returns the resulting state.
func (t *Throttle) RecordFailure(ctx context.Context, principal string) (*models.LoginAttemptState, error) {
	state, err := t.load(ctx, principal)
	if err != nil {
		return nil, err
	}
	now := t.now()
	if state == nil || (state.LockUntil > 0 && !state.Locked(now)) {
		state = &models.LoginAttemptState{}
	}

	state.Attempts++

	var ttl time.Duration
	if state.Attempts >= t.cfg.MaxAttempts {
		state.LockUntil = now.Add(t.cfg.LockDuration).UnixMilli()
		ttl = t.cfg.LockDuration
	}

	if err := t.store.Save(ctx, principal, state, ttl); err != nil {
		return nil, fmt.Errorf("failed to persist attempt record: %w", err)
	}

	if state.LockUntil > 0 {
		t.logger.Warn("Login locked after repeated failures",
			util.String("principal", principal),
			util.Int("attempts", state.Attempts),
			util.Duration("lock_duration", t.cfg.LockDuration),
		)
	} else {
		t.logger.Info("Login failure recorded",
			util.String("principal", principal),
			util.Int("attempts", state.Attempts),
			util.Int("max_attempts", t.cfg.MaxAttempts),
		)
	}
	return state, nil
}

// RecordSuccess clears the counter and any lock. Called on password success
// for accounts without a second factor, and on OTP verification otherwise.
func (t *Throttle) RecordSuccess(ctx context.Context, principal string) error {
	if err := t.store.Delete(ctx, principal); err != nil {
		return fmt.Errorf("failed to clear attempt record: %w", err)
	}
	return nil
}

// Remaining reports the whole seconds left on the principal's lock, zero when
// not locked. Always recomputed from the wall clock.
func (t *Throttle) Remaining(ctx context.Context, principal string) (int, error) {
	state, err := t.load(ctx, principal)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	return state.RemainingSeconds(t.now()), nil
}

// load fetches and validates the persisted record, discarding anything
// malformed rather than trusting it.
func (t *Throttle) load(ctx context.Context, principal string) (*models.LoginAttemptState, error) {
	state, err := t.store.Load(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt record: %w", err)
	}
	if state == nil {
		return nil, nil
	}
	if state.Attempts < 0 || state.LockUntil < 0 {
		t.logger.Warn("Discarding malformed attempt record",
			util.String("principal", principal),
		)
		_ = t.store.Delete(ctx, principal)
		return nil, nil
	}
	return state, nil
}
