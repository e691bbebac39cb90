package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/captcha"
	"github.com/wannabeayours/demirens-auth/internal/client"
	"github.com/wannabeayours/demirens-auth/internal/config"
	"github.com/wannabeayours/demirens-auth/internal/hashing"
	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/otp"
	"github.com/wannabeayours/demirens-auth/internal/throttle"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

// OtpStore persists the live OTP challenge for an in-progress login, keyed by
// the login principal. Saving always replaces the previous challenge. The
// account snapshot is stored with its own longer pendingTTL: a challenge
// expiring only invalidates the code, not the pending login, so a resend can
// still re-issue. DeleteChallenge removes the challenge alone; DeletePending
// removes the whole pending login once it resolves.
type OtpStore interface {
	SaveChallenge(ctx context.Context, principal string, challenge *models.OtpChallenge, account *models.Account, ttl, pendingTTL time.Duration) error
	LoadChallenge(ctx context.Context, principal string) (*models.OtpChallenge, *models.Account, error)
	LoadPendingAccount(ctx context.Context, principal string) (*models.Account, error)
	DeleteChallenge(ctx context.Context, principal string) error
	DeletePending(ctx context.Context, principal string) error
	SetResendCooldown(ctx context.Context, principal string, ttl time.Duration) error
	ResendRemaining(ctx context.Context, principal string) (time.Duration, error)
}

// SessionStore persists the established identity after full authentication.
type SessionStore interface {
	Establish(ctx context.Context, identity *models.SessionIdentity, ttl time.Duration) error
	Get(ctx context.Context, userID string) (*models.SessionIdentity, error)
	Invalidate(ctx context.Context, userID string) error
}

// BackendGateway is the external booking API: the only component that can
// verify a password or deliver an OTP mail.
type BackendGateway interface {
	Login(ctx context.Context, username, password string) (*client.LoginResult, error)
	SendOTP(ctx context.Context, email, code string) error
}

// EventSink receives security events; implementations must tolerate a nil
// receiver so the flow works with auditing disabled.
type EventSink interface {
	Publish(ctx context.Context, event models.SecurityEvent)
}

// AttemptLog records attempt history rows, same nil tolerance as EventSink.
type AttemptLog interface {
	RecordAttempt(ctx context.Context, event models.SecurityEvent) error
}

// LoginRequest is one password submission from the login screen.
type LoginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	CaptchaID    string `json:"captcha_id"`
	CaptchaInput string `json:"captcha_input"`
}

// LoginOutcome is the result of a password submission that was not rejected:
// either a full session, or a pending OTP challenge.
type LoginOutcome struct {
	Authenticated bool                     `json:"authenticated"`
	Session       *models.SessionIdentity  `json:"session,omitempty"`
	OtpRequired   bool                     `json:"otp_required"`
	OtpEmail      string                   `json:"otp_email,omitempty"` // masked
	OtpExpiresAt  int64                    `json:"otp_expires_at,omitempty"`
	ResendAfter   int                      `json:"resend_after_seconds,omitempty"`
	// OtpDeliveryFailed means the mail-send call failed but the issued
	// challenge is still valid; the user may retry entry or resend later.
	OtpDeliveryFailed bool `json:"otp_delivery_failed,omitempty"`
}

// LoginService owns the whole login state machine: captcha gate, attempt
// throttle, OTP second factor, and session establishment.
type LoginService struct {
	throttle *throttle.Throttle
	captchas *captcha.Registry
	otpStore OtpStore
	sessions SessionStore
	backend  BackendGateway
	hasher   *hashing.Hasher
	events   EventSink
	history  AttemptLog
	logger   *zap.Logger

	otpTTL         time.Duration
	pendingTTL     time.Duration
	resendCooldown time.Duration
	codeLength     int
	sessionTTL     time.Duration
	maxAttempts    int

	now func() time.Time

	// In-flight guards: one outstanding network submission per principal and
	// operation, never two.
	inflightMu sync.Mutex
	inflight   map[string]bool

	sweep *sweeper
}

func NewLoginService(
	thr *throttle.Throttle,
	captchas *captcha.Registry,
	otpStore OtpStore,
	sessions SessionStore,
	backend BackendGateway,
	hasher *hashing.Hasher,
	events EventSink,
	history AttemptLog,
	cfg *config.Config,
	logger *zap.Logger,
) *LoginService {
	s := &LoginService{
		throttle:       thr,
		captchas:       captchas,
		otpStore:       otpStore,
		sessions:       sessions,
		backend:        backend,
		hasher:         hasher,
		events:         events,
		history:        history,
		logger:         logger,
		otpTTL:         cfg.OTP.TTL,
		pendingTTL:     cfg.OTP.PendingTTL,
		resendCooldown: cfg.OTP.ResendCooldown,
		codeLength:     cfg.OTP.CodeLength,
		sessionTTL:     cfg.Session.TTL,
		maxAttempts:    cfg.Throttle.MaxAttempts,
		now:            time.Now,
		inflight:       make(map[string]bool),
	}
	s.sweep = newSweeper(s)
	return s
}

// SetClock overrides the wall clock. Test hook.
func (s *LoginService) SetClock(now func() time.Time) {
	s.now = now
	s.throttle.SetClock(now)
}

// NewCaptcha issues a fresh transcription challenge.
func (s *LoginService) NewCaptcha() (*captcha.Challenge, error) {
	return s.captchas.Generate()
}

// Login runs one password submission through the gate: captcha, throttle,
// in-flight guard, then the backend. Throttle state changes only after the
// backend's answer is known; a transport failure changes nothing.
func (s *LoginService) Login(ctx context.Context, req *LoginRequest) (*LoginOutcome, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrMissingCredentials
	}

	// Captcha first, and it is single-use either way: a rejected submission
	// forces the client to fetch a fresh one.
	if !s.captchas.Consume(req.CaptchaID, req.CaptchaInput) {
		return nil, ErrCaptchaMismatch
	}

	// Locked principals are rejected here, before any network call.
	if err := s.throttle.Check(ctx, username); err != nil {
		return nil, err
	}

	if !s.acquire("login:" + username) {
		return nil, ErrRequestInFlight
	}
	defer s.release("login:" + username)

	result, err := s.backend.Login(ctx, username, req.Password)
	if err != nil {
		var rejected *client.RejectedError
		if errors.As(err, &rejected) {
			return nil, s.handleRejection(ctx, username, rejected)
		}
		// Transport failure: the backend never judged these credentials, so
		// the attempt counter stays untouched.
		s.logger.Warn("Login call failed before credentials were judged",
			util.String("principal", username),
			util.ErrorField(err),
		)
		return nil, err
	}

	account := result.Account
	if result.UserType != "" {
		account.UserType = result.UserType
	}

	if !account.TwoFactorEnabled {
		identity, err := s.establishSession(ctx, username, account)
		if err != nil {
			return nil, err
		}
		return &LoginOutcome{Authenticated: true, Session: identity}, nil
	}

	return s.issueChallenge(ctx, username, account)
}

// VerifyOtp checks a submitted code against the live challenge. Expiry clears
// the challenge one-shot; a plain mismatch leaves it in place for another try.
func (s *LoginService) VerifyOtp(ctx context.Context, username, input string) (*models.SessionIdentity, error) {
	username = strings.TrimSpace(username)
	if input == "" {
		return nil, ErrEmptyOtp
	}

	challenge, account, err := s.otpStore.LoadChallenge(ctx, username)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, ErrOtpSessionMissing
	}

	if challenge.Expired(s.now()) {
		s.clearChallenge(ctx, username, account.UserID, models.EventOtpExpired, "challenge expired at verification")
		return nil, ErrOtpExpired
	}

	salt := s.hasher.DeriveSalt(account.UserID)
	if !s.hasher.Verify(input, challenge.Email, salt, challenge.CodeHash) {
		s.publish(ctx, models.EventOtpRejected, username, account.UserID, "code mismatch")
		return nil, ErrOtpMismatch
	}

	if err := s.otpStore.DeletePending(ctx, username); err != nil {
		return nil, err
	}
	s.sweep.forget(username)

	s.publish(ctx, models.EventOtpVerified, username, account.UserID, "")
	return s.establishSession(ctx, username, account)
}

// ResendOtp re-issues the challenge, superseding the previous code. Allowed
// only once the cooldown has elapsed and no send is in flight. A pending
// login whose challenge has already expired can still resend; only a login
// with no pending record at all is turned away.
func (s *LoginService) ResendOtp(ctx context.Context, username string) (*LoginOutcome, error) {
	username = strings.TrimSpace(username)

	challenge, account, err := s.otpStore.LoadChallenge(ctx, username)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		account, err = s.otpStore.LoadPendingAccount(ctx, username)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, ErrOtpSessionMissing
		}
	}

	remaining, err := s.otpStore.ResendRemaining(ctx, username)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		return nil, &CooldownError{SecondsRemaining: int((remaining + time.Second - 1) / time.Second)}
	}

	return s.issueChallenge(ctx, username, account)
}

// LockRemaining reports the seconds left on the principal's lockout.
func (s *LoginService) LockRemaining(ctx context.Context, username string) (int, error) {
	return s.throttle.Remaining(ctx, strings.TrimSpace(username))
}

// Session returns the established identity for a user, if any.
func (s *LoginService) Session(ctx context.Context, userID string) (*models.SessionIdentity, error) {
	return s.sessions.Get(ctx, userID)
}

// Logout clears the established identity.
func (s *LoginService) Logout(ctx context.Context, userID string) error {
	return s.sessions.Invalidate(ctx, userID)
}

// Close stops the background sweeper.
func (s *LoginService) Close() {
	s.sweep.stop()
}

// issueChallenge generates a fresh code, stores only its digest, arms the
// resend cooldown, and hands the raw code to the mail-send operation. A send
// failure is reported on the outcome but does not invalidate the challenge.
func (s *LoginService) issueChallenge(ctx context.Context, principal string, account *models.Account) (*LoginOutcome, error) {
	email := strings.TrimSpace(account.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	if !s.acquire("send:" + principal) {
		return nil, ErrRequestInFlight
	}
	defer s.release("send:" + principal)

	code, err := otp.GenerateCode(s.codeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	now := s.now()
	salt := s.hasher.DeriveSalt(account.UserID)
	challenge := &models.OtpChallenge{
		CodeHash:  s.hasher.HashCode(code, email, salt),
		Email:     email,
		ExpiresAt: now.Add(s.otpTTL).UnixMilli(),
	}

	if err := s.otpStore.SaveChallenge(ctx, principal, challenge, account, s.otpTTL, s.pendingTTL); err != nil {
		return nil, err
	}
	if err := s.otpStore.SetResendCooldown(ctx, principal, s.resendCooldown); err != nil {
		return nil, err
	}

	s.sweep.trackOtp(principal, time.UnixMilli(challenge.ExpiresAt))
	s.sweep.trackCooldown(principal, now.Add(s.resendCooldown))
	s.publish(ctx, models.EventOtpIssued, principal, account.UserID, "")

	outcome := &LoginOutcome{
		OtpRequired:  true,
		OtpEmail:     util.MaskEmail(email),
		OtpExpiresAt: challenge.ExpiresAt,
		ResendAfter:  int(s.resendCooldown / time.Second),
	}

	if err := s.backend.SendOTP(ctx, email, code); err != nil {
		s.logger.Error("OTP mail dispatch failed, challenge remains valid",
			util.String("principal", principal),
			util.ErrorField(err),
		)
		outcome.OtpDeliveryFailed = true
	}

	return outcome, nil
}

// handleRejection applies a definitive credential rejection to the throttle.
func (s *LoginService) handleRejection(ctx context.Context, principal string, rejected *client.RejectedError) error {
	state, err := s.throttle.RecordFailure(ctx, principal)
	if err != nil {
		return err
	}

	s.publish(ctx, models.EventLoginFailed, principal, "", rejected.Message)

	if state.Locked(s.now()) {
		s.sweep.trackLock(principal, time.UnixMilli(state.LockUntil))
		s.publish(ctx, models.EventLoginLocked, principal, "", "")
		return &throttle.LockedError{SecondsRemaining: state.RemainingSeconds(s.now())}
	}

	remaining := 0
	if s.maxAttempts > state.Attempts {
		remaining = s.maxAttempts - state.Attempts
	}
	return &AuthError{Message: rejected.Message, AttemptsRemaining: remaining}
}

func (s *LoginService) establishSession(ctx context.Context, principal string, account *models.Account) (*models.SessionIdentity, error) {
	if err := s.throttle.RecordSuccess(ctx, principal); err != nil {
		return nil, err
	}
	s.sweep.forget(principal)

	identity := &models.SessionIdentity{
		UserID:    account.UserID,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		UserType:  account.UserType,
		UserLevel: account.UserLevel,
	}
	if err := s.sessions.Establish(ctx, identity, s.sessionTTL); err != nil {
		return nil, err
	}

	s.publish(ctx, models.EventLoginSuccess, principal, account.UserID, "")
	return identity, nil
}

func (s *LoginService) clearChallenge(ctx context.Context, principal, userID, eventType, detail string) {
	if err := s.otpStore.DeleteChallenge(ctx, principal); err != nil {
		s.logger.Error("Failed to clear OTP challenge",
			util.String("principal", principal),
			util.ErrorField(err),
		)
	}
	s.sweep.forget(principal)
	s.publish(ctx, eventType, principal, userID, detail)
}

func (s *LoginService) publish(ctx context.Context, eventType, principal, userID, detail string) {
	event := models.SecurityEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Principal: principal,
		UserID:    userID,
		Detail:    detail,
		Timestamp: s.now().UTC(),
	}
	if s.events != nil {
		s.events.Publish(ctx, event)
	}
	if s.history != nil {
		if err := s.history.RecordAttempt(ctx, event); err != nil {
			s.logger.Warn("Failed to record attempt history",
				util.String("event_type", eventType),
				util.ErrorField(err),
			)
		}
	}
}

func (s *LoginService) acquire(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if s.inflight[key] {
		return false
	}
	s.inflight[key] = true
	return true
}

func (s *LoginService) release(key string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, key)
}
