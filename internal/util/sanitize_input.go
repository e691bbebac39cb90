package util

import (
	"html"
	"strings"
)

// SanitizeInput trims and escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious flags inputs that look like injection attempts
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	lowered := strings.ToLower(s)
	for _, c := range badChars {
		if strings.Contains(lowered, c) {
			return true
		}
	}
	return false
}

// MaskEmail hides most of the local part of an address so a login response can
// hint where the code went without disclosing the mailbox.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
