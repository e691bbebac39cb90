package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the front-desk auth service.
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	Backend     BackendConfig
	Kafka       KafkaConfig
	ClickHouse  ClickHouseConfig
	Throttle    ThrottleConfig
	OTP         OTPConfig
	Captcha     CaptchaConfig
	Session     SessionConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	EnableTLS    bool
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// BackendConfig points at the booking API that actually verifies credentials
// and delivers OTP mails. This service never checks a password itself.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ClickHouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
}

// ThrottleConfig tunes the failed-login lockout. The state machine itself is
// fixed; only these two knobs vary between deployments.
type ThrottleConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

type OTPConfig struct {
	CodeLength     int
	TTL            time.Duration
	ResendCooldown time.Duration
	// PendingTTL bounds how long a verified-password login may sit waiting on
	// its second factor. It outlives TTL so an expired code can be recovered
	// with a resend instead of a fresh password entry.
	PendingTTL time.Duration
	// AppSecret is mixed into every per-account salt so an OTP hash from this
	// deployment is useless anywhere else.
	AppSecret string
}

type CaptchaConfig struct {
	Length int
}

type SessionConfig struct {
	TTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from environment variables, loading a .env
// file first when one exists.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("BOOKING_API_BASE_URL", "http://localhost/demirens/api"),
			Timeout: getEnvDuration("BOOKING_API_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getEnv("KAFKA_SECURITY_TOPIC", "frontdesk-security-events"),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "frontdesk"),
		},
		Throttle: ThrottleConfig{
			MaxAttempts:  getEnvInt("LOGIN_MAX_ATTEMPTS", 3),
			LockDuration: getEnvDuration("LOGIN_LOCK_DURATION", 30*time.Second),
		},
		OTP: OTPConfig{
			CodeLength:     getEnvInt("OTP_CODE_LENGTH", 6),
			TTL:            getEnvDuration("OTP_TTL", 5*time.Minute),
			ResendCooldown: getEnvDuration("OTP_RESEND_COOLDOWN", 30*time.Second),
			PendingTTL:     getEnvDuration("OTP_PENDING_TTL", 30*time.Minute),
			AppSecret:      getEnv("OTP_APP_SECRET", "demirens-frontdesk"),
		},
		Captcha: CaptchaConfig{
			Length: getEnvInt("CAPTCHA_LENGTH", 5),
		},
		Session: SessionConfig{
			TTL: getEnvDuration("SESSION_TTL", 12*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
