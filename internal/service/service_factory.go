package service

import (
	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/captcha"
	"github.com/wannabeayours/demirens-auth/internal/config"
	"github.com/wannabeayours/demirens-auth/internal/hashing"
	"github.com/wannabeayours/demirens-auth/internal/throttle"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	throttle *throttle.Throttle
	captchas *captcha.Registry
	otpStore OtpStore
	sessions SessionStore
	backend  BackendGateway
	hasher   *hashing.Hasher
	events   EventSink
	history  AttemptLog
	cfg      *config.Config
	logger   *zap.Logger

	loginService *LoginService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
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
) *ServiceFactory {
	return &ServiceFactory{
		throttle: thr,
		captchas: captchas,
		otpStore: otpStore,
		sessions: sessions,
		backend:  backend,
		hasher:   hasher,
		events:   events,
		history:  history,
		cfg:      cfg,
		logger:   logger,
	}
}

// LoginService returns the login service instance (singleton)
func (f *ServiceFactory) LoginService() *LoginService {
	if f.loginService == nil {
		f.loginService = NewLoginService(
			f.throttle,
			f.captchas,
			f.otpStore,
			f.sessions,
			f.backend,
			f.hasher,
			f.events,
			f.history,
			f.cfg,
			f.logger,
		)
	}
	return f.loginService
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	if f.loginService != nil {
		f.loginService.Close()
	}
}
