package util

import (
	"net/mail"
	"strings"
)

// NormalizeEmail extracts and normalizes the address used to log in to the hub.
// - Accepts bare addresses and RFC 5322 forms like "Name <User@Example.COM>"
// - Lowercases and trims
// Returns empty string if parsing fails or address is missing.
// Unlike sender grouping, +tags are kept: they are part of the login.
func NormalizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr == nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(addr.Address))
	if at := strings.LastIndexByte(email, '@'); at <= 0 || at == len(email)-1 {
		return ""
	}
	return email
}
