package models

import "time"

// Security event types emitted on the audit stream.
const (
	EventLoginFailed  = "login_failed"
	EventLoginLocked  = "login_locked"
	EventLoginSuccess = "login_success"
	EventOtpIssued    = "otp_issued"
	EventOtpVerified  = "otp_verified"
	EventOtpExpired   = "otp_expired"
	EventOtpRejected  = "otp_rejected"
)

// SecurityEvent is one row on the audit stream (Kafka) and in the
// login-attempt history table (ClickHouse).
type SecurityEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Principal string    `json:"principal"`
	UserID    string    `json:"user_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
