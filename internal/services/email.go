package services

import (
	"net/mail"
	"strings"
)

// NormEmail lower-cases and validates an address. Empty is allowed.
func NormEmail(s string) (string, bool) {
	e := strings.TrimSpace(strings.ToLower(s))
	if e == "" {
		return "", true
	}
	addr, err := mail.ParseAddress(e)
	if err != nil {
		return e, false
	}
	return addr.Address, true
}

// NormDPI trims a government id; blank ids are stored as NULL.
func NormDPI(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ReplaceAll(strings.TrimSpace(*s), " ", "")
	if v == "" {
		return nil
	}
	return &v
}
