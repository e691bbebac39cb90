package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wannabeayours/demirens-auth/internal/captcha"
	"github.com/wannabeayours/demirens-auth/internal/client"
	"github.com/wannabeayours/demirens-auth/internal/config"
	"github.com/wannabeayours/demirens-auth/internal/hashing"
	redisrepo "github.com/wannabeayours/demirens-auth/internal/repository/redis"
	"github.com/wannabeayours/demirens-auth/internal/service"
	"github.com/wannabeayours/demirens-auth/internal/throttle"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	apiClient        *client.APIClient
	eventProducer    *client.EventProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher   *hashing.Hasher
	captchas *captcha.Registry
	throttle *throttle.Throttle

	// Repositories
	otpCache     *redisrepo.OTPCache
	sessionCache *redisrepo.SessionCache

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.ClickHouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health
// checks. Redis is required; Kafka and ClickHouse are optional and the
// service proceeds without them.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	// Booking API
	f.apiClient = client.NewAPIClient(f.config, f.redisClient, util.Get())
	util.Info("Booking API client initialized",
		util.String("base_url", f.config.Backend.BaseURL),
	)

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewEventProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.eventProducer = producer
		}
	}

	// ClickHouse
	if f.config.ClickHouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without attempt history", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
		}
	}

	return nil
}

// initializeManagers initializes hashing, captcha, and throttle managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config.OTP.AppSecret)
	f.captchas = captcha.NewRegistry(f.config.Captcha.Length)
	f.throttle = throttle.New(
		redisrepo.NewLockCache(f.redisClient),
		throttle.Config{
			MaxAttempts:  f.config.Throttle.MaxAttempts,
			LockDuration: f.config.Throttle.LockDuration,
		},
		util.Get(),
	)

	f.otpCache = redisrepo.NewOTPCache(f.redisClient)
	f.sessionCache = redisrepo.NewSessionCache(f.redisClient)

	util.Info("Managers initialized successfully",
		util.Int("max_attempts", f.config.Throttle.MaxAttempts),
		util.Duration("lock_duration", f.config.Throttle.LockDuration),
		util.Duration("otp_ttl", f.config.OTP.TTL),
	)
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var events service.EventSink
		if f.eventProducer != nil {
			events = f.eventProducer
		}
		var history service.AttemptLog
		if f.clickhouseClient != nil {
			history = f.clickhouseClient
		}

		f.serviceFactory = service.NewServiceFactory(
			f.throttle,
			f.captchas,
			f.otpCache,
			f.sessionCache,
			f.apiClient,
			f.hasher,
			events,
			history,
			f.config,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck pings every wired dependency concurrently.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	record := func(name string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		healthErrors[name] = err
		mu.Unlock()
	}

	g.Go(func() error {
		if f.redisClient == nil {
			record("redis", fmt.Errorf("redis client not initialized"))
			return nil
		}
		record("redis", f.redisClient.HealthCheck(gctx))
		return nil
	})

	if f.eventProducer != nil {
		g.Go(func() error {
			record("kafka", f.eventProducer.HealthCheck(gctx))
			return nil
		})
	}

	if f.clickhouseClient != nil {
		g.Go(func() error {
			record("clickhouse", f.clickhouseClient.HealthCheck(gctx))
			return nil
		})
	}

	_ = g.Wait()

	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}
	if f.captchas == nil {
		healthErrors["captcha"] = fmt.Errorf("captcha registry not initialized")
	}
	if f.throttle == nil {
		healthErrors["throttle"] = fmt.Errorf("throttle not initialized")
	}

	return healthErrors
}

// IsHealthy treats Kafka and ClickHouse as advisory: they never fail the
// readiness signal.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.eventProducer != nil {
			if err := f.eventProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) RedisClient() *client.RedisClient {
	return f.redisClient
}
