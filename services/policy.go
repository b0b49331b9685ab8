package services

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Policy groups the credential predicates so deployments can swap them.
type Policy struct {
	EmailAllowed   func(email string) bool
	PasswordStrong func(password string) bool
	UsernameValid  func(username string) bool
}

// DefaultPolicy accepts emails of the given institutional domain.
func DefaultPolicy(emailDomain string) Policy {
	return Policy{
		EmailAllowed:   func(email string) bool { return ValidEmailDomain(email, emailDomain) },
		PasswordStrong: ValidPassword,
		UsernameValid:  ValidUsername,
	}
}

var (
	emailLocalPart = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+$`)
	usernameRe     = regexp.MustCompile(`^[A-Za-z0-9_.\-@]{4,32}$`)
	passwordRe     = regexp.MustCompile(`^[A-Za-z0-9#$@!%&*?]{8,}$`)
	colorRe        = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// ValidEmailDomain reports whether email is local@domain, ignoring case.
func ValidEmailDomain(email, domain string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || domain == "" {
		return false
	}
	return email[at+1:] == strings.ToLower(domain) && emailLocalPart.MatchString(email[:at])
}

// ValidPassword requires 8+ characters with at least one lower, upper, digit and
// symbol from #$@!%&*?, and nothing outside those classes.
func ValidPassword(pw string) bool {
	if !passwordRe.MatchString(pw) {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

func ValidUsername(name string) bool {
	return usernameRe.MatchString(name)
}

// ValidColor accepts #RRGGBB.
func ValidColor(c string) bool {
	return colorRe.MatchString(c)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
