package service

import (
	"errors"
	"fmt"
)

// Every error in the login flow is terminal to its operation and recoverable
// by user action; nothing here retries automatically.
var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrCaptchaMismatch    = errors.New("captcha does not match")
	ErrInvalidEmail       = errors.New("account has no usable email address")
	ErrEmptyOtp           = errors.New("verification code is required")
	ErrOtpSessionMissing  = errors.New("no verification in progress")
	ErrOtpExpired         = errors.New("verification code has expired")
	ErrOtpMismatch        = errors.New("incorrect verification code")
	ErrRequestInFlight    = errors.New("a request is already in progress")
)

// AuthError is a definitive credential rejection. Message carries the
// backend's wording verbatim when it supplied one.
type AuthError struct {
	Message           string
	AttemptsRemaining int
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "invalid username or password"
}

// CooldownError rejects a resend requested before the cooldown elapsed.
type CooldownError struct {
	SecondsRemaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting a new code", e.SecondsRemaining)
}
