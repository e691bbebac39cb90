package models

import "time"

// OtpChallenge is the live second-factor challenge for an in-progress login.
// Only the salted hash of the code is ever held; the raw code crosses the
// network exactly once, on its way to the mail-send operation.
type OtpChallenge struct {
	CodeHash  string `json:"code_hash"`
	Email     string `json:"email"`
	ExpiresAt int64  `json:"expires_at"` // epoch ms
}

// Expired reports whether the challenge's validity window has passed.
func (c *OtpChallenge) Expired(now time.Time) bool {
	return now.UnixMilli() > c.ExpiresAt
}
