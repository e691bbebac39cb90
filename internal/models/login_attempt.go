package models

import "time"

// LoginAttemptState is the persisted throttle record for one principal.
// LockUntil is epoch milliseconds; zero means no lock is in effect.
type LoginAttemptState struct {
	Attempts  int   `json:"attempts"`
	LockUntil int64 `json:"lockUntil"`
}

// Locked reports whether the record holds a lock that is still in the future.
func (s *LoginAttemptState) Locked(now time.Time) bool {
	return s.LockUntil > 0 && now.UnixMilli() < s.LockUntil
}

// RemainingSeconds is the whole seconds left on the lock, rounded up so a
// countdown never shows zero while the lock still holds.
func (s *LoginAttemptState) RemainingSeconds(now time.Time) int {
	if !s.Locked(now) {
		return 0
	}
	ms := s.LockUntil - now.UnixMilli()
	return int((ms + 999) / 1000)
}
