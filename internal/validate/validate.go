package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// employee number; the admin account uses a word
	reNIK     = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)
	reEmail   = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reQ       = regexp.MustCompile(`^[\p{L}0-9 _'\-]{1,50}$`)
	reID      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reAccount = regexp.MustCompile(`^[0-9 -]{4,30}$`)
	rePhone   = regexp.MustCompile(`^[0-9+ -]{0,20}$`)
)

const (
	MaxCustomerName = 50
	MaxPassword     = 72 // bcrypt input limit
)

func NIK(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reNIK.MatchString(s)
}

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 100 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// Q validates a search query: trims, enforces allowed characters and max length.
// An empty query is valid and means no filter.
func Q(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	if utf8.RuneCountInString(s) > 50 {
		s = string([]rune(s)[:50])
	}
	return s, reQ.MatchString(s)
}

// ID validates a simple resource identifier (product/category/withdrawal ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// CustomerName is the name typed on the kiosk details screen.
func CustomerName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > MaxCustomerName {
		return "", false
	}
	return s, true
}

// Name validates a seller or product display name.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || utf8.RuneCountInString(s) > 100 {
		return "", false
	}
	return s, true
}

func Phone(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, rePhone.MatchString(s)
}

// Password only bounds the length; strength rules live in the auth service.
func Password(s string) bool {
	return s != "" && len(s) <= MaxPassword
}

func AccountNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reAccount.MatchString(s)
}
