package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/client"
	"github.com/wannabeayours/demirens-auth/internal/service"
	"github.com/wannabeayours/demirens-auth/internal/throttle"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

// AuthHandler handles HTTP requests for the login flow
type AuthHandler struct {
	loginService *service.LoginService
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(loginService *service.LoginService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		loginService: loginService,
		logger:       logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Get("/captcha", h.NewCaptcha)
		r.Post("/login", h.Login)
		r.Post("/otp/verify", h.VerifyOtp)
		r.Post("/otp/resend", h.ResendOtp)
		r.Get("/lock/{username}", h.LockStatus)
		r.Get("/session/{userID}", h.GetSession)
		r.Post("/logout", h.Logout)
	})
}

// NewCaptcha issues a fresh captcha challenge. The glyph set (characters and
// colors) goes to the client for rendering; the expected answer never leaves
// the server except inside the challenge itself, which is single-use.
func (h *AuthHandler) NewCaptcha(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.loginService.NewCaptcha()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to generate captcha")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"captcha_id": challenge.ID,
		"glyphs":     challenge.Glyphs,
	}, "Captcha generated"))
}

// Login handles a password submission
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	outcome, err := h.loginService.Login(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Login failed")
		return
	}

	message := "One-time code sent"
	if outcome.Authenticated {
		message = "Login successful"
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(outcome, message))
	h.logger.Info("Login processed via HTTP",
		util.String("username", req.Username),
		util.Bool("authenticated", outcome.Authenticated),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Login"),
	)
}

// VerifyOtp handles a one-time code submission
func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	identity, err := h.loginService.VerifyOtp(ctx, req.Username, req.Code)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(identity, "Login successful"))
	h.logger.Info("OTP verified via HTTP",
		util.String("username", req.Username),
		util.String("user_id", identity.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "VerifyOtp"),
	)
}

// ResendOtp handles a resend request
func (h *AuthHandler) ResendOtp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	outcome, err := h.loginService.ResendOtp(ctx, req.Username)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Resend failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(outcome, "One-time code sent"))
	h.logger.Info("OTP resent via HTTP",
		util.String("username", req.Username),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ResendOtp"),
	)
}

// LockStatus reports the remaining lockout for a username
func (h *AuthHandler) LockStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := chi.URLParam(r, "username")
	if username == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("username is required"), "Username is required")
		return
	}

	seconds, err := h.loginService.LockRemaining(ctx, username)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to read lock status")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"locked":            seconds > 0,
		"seconds_remaining": seconds,
	}, "Lock status retrieved"))
}

// GetSession returns the established identity for a user
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("user ID is required"), "User ID is required")
		return
	}

	identity, err := h.loginService.Session(ctx, userID)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to read session")
		return
	}
	if identity == nil {
		h.respondWithError(w, http.StatusNotFound, errors.New("session not found"), "No active session")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(identity, "Session retrieved"))
}

// Logout clears the established identity
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.UserID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("user ID is required"), "User ID is required")
		return
	}

	if err := h.loginService.Logout(ctx, req.UserID); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to log out")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
	h.logger.Info("Session cleared via HTTP",
		util.String("user_id", req.UserID),
		util.String("method", "Logout"),
	)
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *AuthHandler) getStatusCode(err error) int {
	var locked *throttle.LockedError
	var cooldown *service.CooldownError
	var rejected *service.AuthError

	switch {
	case errors.Is(err, service.ErrMissingCredentials),
		errors.Is(err, service.ErrCaptchaMismatch),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrEmptyOtp):
		return http.StatusBadRequest
	case errors.As(err, &locked), errors.As(err, &cooldown):
		return http.StatusTooManyRequests
	case errors.As(err, &rejected), errors.Is(err, service.ErrOtpMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrOtpExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrOtpSessionMissing):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, client.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
