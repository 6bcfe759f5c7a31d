package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail returns the key under which an email address is stored and
// compared: trimmed, NFC-normalized and case-folded.
func NormalizeEmail(email string) string {
	// Casers are stateful, so one is built per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(email)))
}

// ValidateEmail performs the minimal structural check the registrar needs:
// exactly one '@' with non-empty local part and domain.
func ValidateEmail(email string) error {
	if _, _, ok := splitEmail(email); !ok {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

func splitEmail(email string) (local, domain string, ok bool) {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.IndexByte(email[at+1:], '@') >= 0 {
		return "", "", false
	}
	return email[:at], email[at+1:], true
}
