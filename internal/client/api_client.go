package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/config"
	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

const baseURLOverrideKey = "booking_api_base_url"

// ErrBackendUnavailable covers transport-level failures: the booking API was
// never consulted about the credentials, so local throttle state must not
// change when this is returned.
var ErrBackendUnavailable = errors.New("booking api unavailable")

// RejectedError is a definitive rejection from the booking API, carrying the
// server's message verbatim when it supplied one.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "invalid username or password"
}

// LoginResult is the provisional identity returned on a successful password
// check. The session is not established until the second factor clears.
type LoginResult struct {
	Account  *models.Account
	UserType string
}

// APIClient talks to the external booking backend over HTTP. The base URL is
// re-resolved on every call: an operator can repoint the backend through the
// Redis override key without a restart.
type APIClient struct {
	http   *http.Client
	redis  *RedisClient
	config *config.BackendConfig
	logger *zap.Logger
}

func NewAPIClient(cfg *config.Config, redis *RedisClient, logger *zap.Logger) *APIClient {
	return &APIClient{
		http: &http.Client{
			Timeout: cfg.Backend.Timeout,
		},
		redis:  redis,
		config: &cfg.Backend,
		logger: logger,
	}
}

// baseURL prefers the Redis override, falling back to configuration.
func (c *APIClient) baseURL(ctx context.Context) string {
	if c.redis != nil {
		if url, err := c.redis.Get(ctx, baseURLOverrideKey); err == nil && url != "" {
			return strings.TrimRight(url, "/")
		}
	}
	return strings.TrimRight(c.config.BaseURL, "/")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	User     *models.Account `json:"user"`
	UserType string          `json:"user_type"`
}

// Login submits the credentials for verification. Exactly one of the returns
// is meaningful: a result on success, a *RejectedError on definitive refusal,
// or an ErrBackendUnavailable-wrapped error when the call never completed.
func (c *APIClient) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	start := time.Now()

	var resp loginResponse
	if err := c.postJSON(ctx, "/auth/login.php", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		c.logger.Info("Backend rejected credentials",
			util.String("username", username),
			util.Duration("duration", time.Since(start)),
		)
		return nil, &RejectedError{Message: resp.Message}
	}
	if resp.User == nil {
		return nil, fmt.Errorf("%w: success response without user payload", ErrBackendUnavailable)
	}

	c.logger.Debug("Backend accepted credentials",
		util.String("username", username),
		util.String("user_type", resp.UserType),
		util.Duration("duration", time.Since(start)),
	)
	return &LoginResult{Account: resp.User, UserType: resp.UserType}, nil
}

type sendOTPRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otp_code"`
}

type sendOTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendOTP asks the backend to mail the raw code. This is the only place the
// raw code leaves the process, and nothing in the response echoes it back.
func (c *APIClient) SendOTP(ctx context.Context, email, code string) error {
	var resp sendOTPResponse
	if err := c.postJSON(ctx, "/auth/send_otp.php", sendOTPRequest{Email: email, OTPCode: code}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, resp.Message)
		}
		return fmt.Errorf("%w: otp send refused", ErrBackendUnavailable)
	}
	return nil
}

func (c *APIClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.baseURL(ctx) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend call failed",
			util.String("path", path),
			util.ErrorField(err),
		)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", ErrBackendUnavailable, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrBackendUnavailable, err)
	}
	return nil
}
