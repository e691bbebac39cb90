package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/captcha"
	"github.com/wannabeayours/demirens-auth/internal/client"
	"github.com/wannabeayours/demirens-auth/internal/config"
	"github.com/wannabeayours/demirens-auth/internal/hashing"
	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/throttle"
)

// ---- fakes ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memLockStore backs the throttle in place of Redis.
type memLockStore struct {
	mu      sync.Mutex
	records map[string]models.LoginAttemptState
}

func newMemLockStore() *memLockStore {
	return &memLockStore{records: make(map[string]models.LoginAttemptState)}
}

func (s *memLockStore) Load(ctx context.Context, principal string) (*models.LoginAttemptState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.records[principal]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *memLockStore) Save(ctx context.Context, principal string, state *models.LoginAttemptState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[principal] = *state
	return nil
}

func (s *memLockStore) Delete(ctx context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, principal)
	return nil
}

type challengeEntry struct {
	challenge     *models.OtpChallenge
	account       models.Account
	cooldownUntil time.Time
}

// memOtpStore keeps one pending login per principal, cooldown deadlines
// resolved against the injected clock. The challenge within an entry is
// nilable: deleting the challenge leaves the pending account behind, the
// way the cache gives the account record its longer TTL.
type memOtpStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*challengeEntry
}

func newMemOtpStore(now func() time.Time) *memOtpStore {
	return &memOtpStore{now: now, entries: make(map[string]*challengeEntry)}
}

func (s *memOtpStore) SaveChallenge(ctx context.Context, principal string, challenge *models.OtpChallenge, account *models.Account, ttl, pendingTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.entries[principal]
	ch := *challenge
	entry := &challengeEntry{challenge: &ch, account: *account}
	if prev != nil {
		entry.cooldownUntil = prev.cooldownUntil
	}
	s.entries[principal] = entry
	return nil
}

func (s *memOtpStore) LoadChallenge(ctx context.Context, principal string) (*models.OtpChallenge, *models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[principal]
	if !ok || entry.challenge == nil {
		return nil, nil, nil
	}
	ch := *entry.challenge
	acct := entry.account
	return &ch, &acct, nil
}

func (s *memOtpStore) LoadPendingAccount(ctx context.Context, principal string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[principal]
	if !ok {
		return nil, nil
	}
	acct := entry.account
	return &acct, nil
}

func (s *memOtpStore) DeleteChallenge(ctx context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[principal]; ok {
		entry.challenge = nil
	}
	return nil
}

func (s *memOtpStore) DeletePending(ctx context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, principal)
	return nil
}

func (s *memOtpStore) SetResendCooldown(ctx context.Context, principal string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[principal]; ok {
		entry.cooldownUntil = s.now().Add(ttl)
	}
	return nil
}

func (s *memOtpStore) ResendRemaining(ctx context.Context, principal string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[principal]
	if !ok {
		return 0, nil
	}
	remaining := entry.cooldownUntil.Sub(s.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.SessionIdentity
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]models.SessionIdentity)}
}

func (s *memSessionStore) Establish(ctx context.Context, identity *models.SessionIdentity, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[identity.UserID] = *identity
	return nil
}

func (s *memSessionStore) Get(ctx context.Context, userID string) (*models.SessionIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (s *memSessionStore) Invalidate(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// fakeBackend scripts the booking API.
type fakeBackend struct {
	mu         sync.Mutex
	account    *models.Account
	userType   string
	loginErr   error
	sendErr    error
	loginCalls int
	sentCodes  []string
	sentEmails []string

	// When set, Login reports each caller on entered and then parks until
	// loginGate closes, so a test can hold a request in flight.
	entered   chan string
	loginGate chan struct{}
}

func (b *fakeBackend) Login(ctx context.Context, username, password string) (*client.LoginResult, error) {
	b.mu.Lock()
	b.loginCalls++
	loginErr := b.loginErr
	account := b.account
	userType := b.userType
	entered := b.entered
	gate := b.loginGate
	b.mu.Unlock()

	if entered != nil {
		entered <- username
	}
	if gate != nil {
		<-gate
	}

	if loginErr != nil {
		return nil, loginErr
	}
	acct := *account
	return &client.LoginResult{Account: &acct, UserType: userType}, nil
}

func (b *fakeBackend) SendOTP(ctx context.Context, email, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sentCodes = append(b.sentCodes, code)
	b.sentEmails = append(b.sentEmails, email)
	return nil
}

func (b *fakeBackend) lastCode() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sentCodes) == 0 {
		return ""
	}
	return b.sentCodes[len(b.sentCodes)-1]
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loginCalls
}

// ---- harness ----

type harness struct {
	svc      *LoginService
	clock    *fakeClock
	captchas *captcha.Registry
	backend  *fakeBackend
	otps     *memOtpStore
	sessions *memSessionStore
	locks    *memLockStore
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()

	clock := newFakeClock()
	cfg := &config.Config{
		Throttle: config.ThrottleConfig{MaxAttempts: 3, LockDuration: 30 * time.Second},
		OTP: config.OTPConfig{
			CodeLength:     6,
			TTL:            5 * time.Minute,
			ResendCooldown: 30 * time.Second,
			PendingTTL:     30 * time.Minute,
			AppSecret:      "test-secret",
		},
		Captcha: config.CaptchaConfig{Length: 5},
		Session: config.SessionConfig{TTL: time.Hour},
	}

	locks := newMemLockStore()
	thr := throttle.New(locks, throttle.Config{
		MaxAttempts:  cfg.Throttle.MaxAttempts,
		LockDuration: cfg.Throttle.LockDuration,
	}, zap.NewNop())
	captchas := captcha.NewRegistry(cfg.Captcha.Length)
	otps := newMemOtpStore(clock.Now)
	sessions := newMemSessionStore()

	svc := NewLoginService(
		thr, captchas, otps, sessions, backend,
		hashing.NewHasher(cfg.OTP.AppSecret),
		nil, nil, cfg, zap.NewNop(),
	)
	svc.SetClock(clock.Now)
	t.Cleanup(svc.Close)

	return &harness{
		svc:      svc,
		clock:    clock,
		captchas: captchas,
		backend:  backend,
		otps:     otps,
		sessions: sessions,
		locks:    locks,
	}
}

func frontDeskAccount() *models.Account {
	return &models.Account{
		UserID:           "34",
		FirstName:        "Olivia",
		LastName:         "Reyes",
		Email:            "olivia@example.com",
		UserType:         "Front Desk",
		UserLevel:        2,
		TwoFactorEnabled: true,
	}
}

// loginRequest builds a submission carrying a freshly solved captcha.
func (h *harness) loginRequest(t *testing.T) *LoginRequest {
	return h.loginRequestFor(t, "frontdesk")
}

func (h *harness) loginRequestFor(t *testing.T, username string) *LoginRequest {
	t.Helper()
	ch, err := h.captchas.Generate()
	require.NoError(t, err)
	return &LoginRequest{
		Username:     username,
		Password:     "hunter2",
		CaptchaID:    ch.ID,
		CaptchaInput: ch.Text(),
	}
}

// ---- tests ----

func TestLoginWithoutSecondFactor(t *testing.T) {
	acct := frontDeskAccount()
	acct.TwoFactorEnabled = false
	h := newHarness(t, &fakeBackend{account: acct, userType: "Front Desk"})
	ctx := context.Background()

	outcome, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)

	assert.True(t, outcome.Authenticated)
	assert.False(t, outcome.OtpRequired)
	require.NotNil(t, outcome.Session)
	assert.Equal(t, "34", outcome.Session.UserID)
	assert.Equal(t, "Olivia", outcome.Session.FirstName)

	stored, err := h.sessions.Get(ctx, "34")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Front Desk", stored.UserType)
}

func TestLoginIssuesOtpChallenge(t *testing.T) {
	backend := &fakeBackend{account: frontDeskAccount(), userType: "Front Desk"}
	h := newHarness(t, backend)
	ctx := context.Background()

	outcome, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)

	assert.False(t, outcome.Authenticated)
	assert.True(t, outcome.OtpRequired)
	assert.Nil(t, outcome.Session)
	assert.Equal(t, "o*****@example.com", outcome.OtpEmail)
	assert.Equal(t, 30, outcome.ResendAfter)
	assert.Equal(t, h.clock.Now().Add(5*time.Minute).UnixMilli(), outcome.OtpExpiresAt)

	// The raw code went to the mail gateway and nowhere else.
	code := backend.lastCode()
	require.Len(t, code, 6)
	challenge, _, err := h.otps.LoadChallenge(ctx, "frontdesk")
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.NotContains(t, challenge.CodeHash, code)

	// No session until the code is verified.
	stored, err := h.sessions.Get(ctx, "34")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestVerifyOtpEstablishesSession(t *testing.T) {
	backend := &fakeBackend{account: frontDeskAccount(), userType: "Front Desk"}
	h := newHarness(t, backend)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)

	identity, err := h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	require.NoError(t, err)
	assert.Equal(t, "34", identity.UserID)

	stored, err := h.sessions.Get(ctx, "34")
	require.NoError(t, err)
	require.NotNil(t, stored)

	// The challenge is spent; the same code cannot log in twice.
	_, err = h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	assert.ErrorIs(t, err, ErrOtpSessionMissing)
}

func TestVerifyOtpMismatchKeepsChallenge(t *testing.T) {
	backend := &fakeBackend{account: frontDeskAccount(), userType: "Front Desk"}
	h := newHarness(t, backend)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)

	_, err = h.svc.VerifyOtp(ctx, "frontdesk", "WRONG1")
	assert.ErrorIs(t, err, ErrOtpMismatch)

	// The real code still works after a miss.
	identity, err := h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	require.NoError(t, err)
	assert.Equal(t, "34", identity.UserID)
}

func TestVerifyOtpExpired(t *testing.T) {
	backend := &fakeBackend{account: frontDeskAccount(), userType: "Front Desk"}
	h := newHarness(t, backend)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)

	// Stop the background sweep so the expiry is observed by the verify call
	// itself, deterministically.
	h.svc.Close()
	h.clock.Advance(5*time.Minute + time.Second)

	_, err = h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	assert.ErrorIs(t, err, ErrOtpExpired)

	// Expiry clears the challenge; the next attempt finds nothing.
	_, err = h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	assert.ErrorIs(t, err, ErrOtpSessionMissing)
}

func TestVerifyOtpWithoutChallenge(t *testing.T) {
	h := newHarness(t, &fakeBackend{account: frontDeskAccount()})
	_, err := h.svc.VerifyOtp(context.Background(), "frontdesk", "ABCDEF")
	assert.ErrorIs(t, err, ErrOtpSessionMissing)
}

func TestVerifyOtpEmptyInput(t *testing.T) {
	h := newHarness(t, &fakeBackend{account: frontDeskAccount()})
	_, err := h.svc.VerifyOtp(context.Background(), "frontdesk", "")
	assert.ErrorIs(t, err, ErrEmptyOtp)
}

func TestResendSupersedesPreviousCode(t *testing.T) {
	backend := &fakeBackend{account: frontDeskAccount(), userType: "Front Desk"}
	h := newHarness(t, backend)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)
	firstCode := backend.lastCode()

	// Inside the cooldown the resend is refused with the remaining wait.
	h.clock.Advance(10 * time.Second)
	_, err = h.svc.ResendOtp(ctx, "frontdesk")
	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 20, cooldown.SecondsRemaining)

	h.clock.Advance(20 * time.Second)
	outcome, err := h.svc.ResendOtp(ctx, "frontdesk")
	require.NoError(t, err)
	assert.True(t, outcome.OtpRequired)

	secondCode := backend.lastCode()
	require.NotEqual(t, firstCode, secondCode)

	// Only the latest code opens the session.
	_, err = h.svc.VerifyOtp(ctx, "frontdesk", firstCode)
	assert.ErrorIs(t, err, ErrOtpMismatch)
	identity, err := h.svc.VerifyOtp(ctx, "frontdesk", secondCode)
	require.NoError(t, err)
	assert.Equal(t, "34", identity.UserID)
}

func TestResendWithoutChallenge(t *testing.T) {
	h := newHarness(t, &fakeBackend{account: frontDeskAccount()})
	_, err := h.svc.ResendOtp(context.Background(), "frontdesk")
	assert.ErrorIs(t, err, ErrOtpSessionMissing)
}

func TestResendRecoversExpiredChallenge(t *testing.T) {
	backend := &fakeBackend{account: frontDeskAccount(), userType: "Front Desk"}
	h := newHarness(t, backend)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)
	expiredCode := backend.lastCode()

	h.svc.Close()
	h.clock.Advance(5*time.Minute + time.Second)

	_, err = h.svc.VerifyOtp(ctx, "frontdesk", expiredCode)
	require.ErrorIs(t, err, ErrOtpExpired)

	// The pending login outlives its code. A resend issues a fresh challenge
	// without another password round trip.
	outcome, err := h.svc.ResendOtp(ctx, "frontdesk")
	require.NoError(t, err)
	assert.True(t, outcome.OtpRequired)
	assert.Equal(t, 1, backend.calls())

	identity, err := h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	require.NoError(t, err)
	assert.Equal(t, "34", identity.UserID)
}

func TestLoginRefusedWhileRequestInFlight(t *testing.T) {
	backend := &fakeBackend{
		account:   frontDeskAccount(),
		userType:  "Front Desk",
		entered:   make(chan string, 2),
		loginGate: make(chan struct{}),
	}
	h := newHarness(t, backend)
	ctx := context.Background()

	firstReq := h.loginRequest(t)
	otherReq := h.loginRequestFor(t, "bellhop")

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.svc.Login(ctx, firstReq)
		firstDone <- err
	}()

	// Wait until the first submission is parked inside the upstream call.
	require.Equal(t, "frontdesk", <-backend.entered)

	// A second submission for the same principal is turned away instead of
	// stacking another upstream request.
	_, err := h.svc.Login(ctx, h.loginRequest(t))
	assert.ErrorIs(t, err, ErrRequestInFlight)

	// A different principal is not held up by it.
	otherDone := make(chan error, 1)
	go func() {
		_, err := h.svc.Login(ctx, otherReq)
		otherDone <- err
	}()
	require.Equal(t, "bellhop", <-backend.entered)

	close(backend.loginGate)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-otherDone)

	// With the first request resolved the guard is released.
	_, err = h.svc.ResendOtp(ctx, "frontdesk")
	var cooldown *CooldownError
	assert.ErrorAs(t, err, &cooldown)
}

func TestRejectionsLockAfterThreeAttempts(t *testing.T) {
	backend := &fakeBackend{loginErr: &client.RejectedError{Message: "Invalid username or password"}}
	h := newHarness(t, backend)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.svc.Login(ctx, h.loginRequest(t))
		var rejected *AuthError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "Invalid username or password", rejected.Message)
		assert.Equal(t, 2-i, rejected.AttemptsRemaining)
	}

	// The third failure locks on the spot.
	_, err := h.svc.Login(ctx, h.loginRequest(t))
	var locked *throttle.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 30, locked.SecondsRemaining)

	// While locked the backend is never consulted.
	callsBefore := backend.calls()
	_, err = h.svc.Login(ctx, h.loginRequest(t))
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, callsBefore, backend.calls())

	// The lock releases on schedule and the counter starts over.
	h.clock.Advance(31 * time.Second)
	backend.mu.Lock()
	backend.loginErr = nil
	backend.account = frontDeskAccount()
	backend.userType = "Front Desk"
	backend.mu.Unlock()

	outcome, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)
	assert.True(t, outcome.OtpRequired)
}

func TestTransportFailureDoesNotCountAsAttempt(t *testing.T) {
	backend := &fakeBackend{loginErr: fmt.Errorf("%w: connection refused", client.ErrBackendUnavailable)}
	h := newHarness(t, backend)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.svc.Login(ctx, h.loginRequest(t))
		require.ErrorIs(t, err, client.ErrBackendUnavailable)
	}

	// Five transport failures later, nothing is locked and no attempts are
	// on record.
	remaining, err := h.svc.LockRemaining(ctx, "frontdesk")
	require.NoError(t, err)
	assert.Zero(t, remaining)
	st, err := h.locks.Load(ctx, "frontdesk")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestCaptchaGatesTheBackend(t *testing.T) {
	backend := &fakeBackend{account: frontDeskAccount()}
	h := newHarness(t, backend)
	ctx := context.Background()

	ch, err := h.captchas.Generate()
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, &LoginRequest{
		Username:     "frontdesk",
		Password:     "hunter2",
		CaptchaID:    ch.ID,
		CaptchaInput: strings.ToLower(ch.Text()) + "x",
	})
	assert.ErrorIs(t, err, ErrCaptchaMismatch)
	assert.Zero(t, backend.calls())

	// A captcha mismatch is not a login failure.
	st, err := h.locks.Load(ctx, "frontdesk")
	require.NoError(t, err)
	assert.Nil(t, st)

	// The challenge was consumed by the miss: replaying the right answer
	// fails too.
	_, err = h.svc.Login(ctx, &LoginRequest{
		Username:     "frontdesk",
		Password:     "hunter2",
		CaptchaID:    ch.ID,
		CaptchaInput: ch.Text(),
	})
	assert.ErrorIs(t, err, ErrCaptchaMismatch)
}

func TestMissingCredentials(t *testing.T) {
	h := newHarness(t, &fakeBackend{account: frontDeskAccount()})
	ctx := context.Background()

	_, err := h.svc.Login(ctx, &LoginRequest{Username: "  ", Password: "x"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = h.svc.Login(ctx, &LoginRequest{Username: "frontdesk", Password: ""})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestOtpDeliveryFailureKeepsChallenge(t *testing.T) {
	backend := &fakeBackend{
		account: frontDeskAccount(),
		sendErr: errors.New("smtp relay down"),
	}
	h := newHarness(t, backend)
	ctx := context.Background()

	outcome, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)
	assert.True(t, outcome.OtpRequired)
	assert.True(t, outcome.OtpDeliveryFailed)

	// The challenge survives the failed send; a later resend can still reach
	// the user.
	challenge, _, err := h.otps.LoadChallenge(ctx, "frontdesk")
	require.NoError(t, err)
	assert.NotNil(t, challenge)

	h.clock.Advance(31 * time.Second)
	backend.mu.Lock()
	backend.sendErr = nil
	backend.mu.Unlock()

	outcome, err = h.svc.ResendOtp(ctx, "frontdesk")
	require.NoError(t, err)
	assert.False(t, outcome.OtpDeliveryFailed)

	identity, err := h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	require.NoError(t, err)
	assert.Equal(t, "34", identity.UserID)
}

func TestOtpSuccessClearsThrottle(t *testing.T) {
	backend := &fakeBackend{loginErr: &client.RejectedError{Message: "Invalid username or password"}}
	h := newHarness(t, backend)
	ctx := context.Background()

	// Two strikes, then the password succeeds and the second factor clears.
	for i := 0; i < 2; i++ {
		_, err := h.svc.Login(ctx, h.loginRequest(t))
		var rejected *AuthError
		require.ErrorAs(t, err, &rejected)
	}

	backend.mu.Lock()
	backend.loginErr = nil
	backend.account = frontDeskAccount()
	backend.userType = "Front Desk"
	backend.mu.Unlock()

	_, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)
	_, err = h.svc.VerifyOtp(ctx, "frontdesk", backend.lastCode())
	require.NoError(t, err)

	// The slate is clean: three fresh failures are needed to lock.
	st, err := h.locks.Load(ctx, "frontdesk")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	acct := frontDeskAccount()
	acct.TwoFactorEnabled = false
	h := newHarness(t, &fakeBackend{account: acct, userType: "Front Desk"})
	ctx := context.Background()

	_, err := h.svc.Login(ctx, h.loginRequest(t))
	require.NoError(t, err)

	require.NoError(t, h.svc.Logout(ctx, "34"))
	stored, err := h.svc.Session(ctx, "34")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestInvalidAccountEmail(t *testing.T) {
	acct := frontDeskAccount()
	acct.Email = "not-an-email"
	h := newHarness(t, &fakeBackend{account: acct, userType: "Front Desk"})

	_, err := h.svc.Login(context.Background(), h.loginRequest(t))
	assert.ErrorIs(t, err, ErrInvalidEmail)
}
