package service

import (
	"context"
	"sync"
	"time"

	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

// pendingTimers holds the deadlines outstanding for one principal. A zero
// time means no deadline of that kind is armed.
type pendingTimers struct {
	otpExpiry  time.Time
	lockUntil  time.Time
	resendOpen time.Time
}

func (p pendingTimers) empty() bool {
	return p.otpExpiry.IsZero() && p.lockUntil.IsZero() && p.resendOpen.IsZero()
}

// sweeper drives the second-granularity transitions that would otherwise only
// happen lazily on the next request: clearing expired OTP challenges, noting
// lock releases, and opening the resend window. It recomputes everything from
// the wall clock on each tick, so a delayed or coalesced tick still lands on
// the right state. The ticker runs only while at least one deadline is armed.
type sweeper struct {
	svc *LoginService

	mu      sync.Mutex
	pending map[string]*pendingTimers
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func newSweeper(svc *LoginService) *sweeper {
	return &sweeper{
		svc:     svc,
		pending: make(map[string]*pendingTimers),
	}
}

func (w *sweeper) trackOtp(principal string, expiresAt time.Time) {
	w.arm(principal, func(p *pendingTimers) { p.otpExpiry = expiresAt })
}

func (w *sweeper) trackLock(principal string, until time.Time) {
	w.arm(principal, func(p *pendingTimers) { p.lockUntil = until })
}

func (w *sweeper) trackCooldown(principal string, opensAt time.Time) {
	w.arm(principal, func(p *pendingTimers) { p.resendOpen = opensAt })
}

// forget drops every deadline for a principal, used when the flow resolves
// early (verification, successful login, explicit clear).
func (w *sweeper) forget(principal string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, principal)
}

func (w *sweeper) stop() {
	w.mu.Lock()
	if w.running {
		close(w.done)
		w.running = false
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *sweeper) arm(principal string, set func(*pendingTimers)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[principal]
	if !ok {
		p = &pendingTimers{}
		w.pending[principal] = p
	}
	set(p)

	if !w.running {
		w.running = true
		w.done = make(chan struct{})
		w.wg.Add(1)
		go w.run(w.done)
	}
}

func (w *sweeper) run(done chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if w.tick() {
				return
			}
		}
	}
}

// tick fires every elapsed deadline in order: OTP expiry first, then lock
// release, then resend-window opening. Returns true once nothing remains
// armed, which retires the goroutine.
func (w *sweeper) tick() bool {
	now := w.svc.now()

	var expired []string

	w.mu.Lock()
	for principal, p := range w.pending {
		if !p.otpExpiry.IsZero() && !now.Before(p.otpExpiry) {
			p.otpExpiry = time.Time{}
			expired = append(expired, principal)
		}
		if !p.lockUntil.IsZero() && !now.Before(p.lockUntil) {
			p.lockUntil = time.Time{}
		}
		if !p.resendOpen.IsZero() && !now.Before(p.resendOpen) {
			p.resendOpen = time.Time{}
		}
		if p.empty() {
			delete(w.pending, principal)
		}
	}
	idle := len(w.pending) == 0
	if idle {
		w.running = false
	}
	w.mu.Unlock()

	for _, principal := range expired {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		challenge, account, err := w.svc.otpStore.LoadChallenge(ctx, principal)
		if err != nil {
			w.svc.logger.Warn("Sweep could not load challenge",
				util.String("principal", principal),
				util.ErrorField(err),
			)
			cancel()
			continue
		}
		// Only clear what is actually expired; a resend may have superseded
		// the challenge this deadline was armed for.
		if challenge != nil && challenge.Expired(now) {
			userID := ""
			if account != nil {
				userID = account.UserID
			}
			w.svc.clearChallenge(ctx, principal, userID, models.EventOtpExpired, "challenge expired unattended")
		}
		cancel()
	}

	return idle
}
