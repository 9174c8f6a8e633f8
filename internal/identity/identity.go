// Package identity normalizes the channel addresses and opaque tokens that key users and OTP records.
package identity

import (
	"errors"
	"regexp"
	"strings"
)

type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
	KindToken Kind = "token"
)

var (
	ErrInvalidEmail = errors.New("invalid email format")
	ErrInvalidPhone = errors.New("phone number must be 10 digits")
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// Identifier is the key an OTP record is stored under.
type Identifier struct {
	Kind  Kind
	Value string
}

func Email(normalized string) Identifier { return Identifier{Kind: KindEmail, Value: normalized} }
func Phone(normalized string) Identifier { return Identifier{Kind: KindPhone, Value: normalized} }
func Token(token string) Identifier      { return Identifier{Kind: KindToken, Value: token} }

func (i Identifier) String() string { return i.Value }

func (i Identifier) IsZero() bool { return i.Value == "" }

// Masked returns a log-safe rendering.
func (i Identifier) Masked() string { return Mask(i.Value) }

func ValidEmail(raw string) bool {
	return emailPattern.MatchString(strings.TrimSpace(raw))
}

// NormalizeEmail trims and lowercases an address and rejects malformed input.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NormalizePhone reduces raw input to ten local digits and prefixes countryCode.
// Input that already carries the country code is accepted.
func NormalizePhone(raw, countryCode string) (string, error) {
	digits := nonDigits.ReplaceAllString(raw, "")
	ccDigits := nonDigits.ReplaceAllString(countryCode, "")

	if len(digits) == 10+len(ccDigits) && ccDigits != "" &&
		strings.HasPrefix(strings.TrimSpace(raw), "+") && strings.HasPrefix(digits, ccDigits) {
		digits = digits[len(ccDigits):]
	}
	if len(digits) != 10 {
		return "", ErrInvalidPhone
	}
	return countryCode + digits, nil
}

// LocalDigits strips the country code from a normalized phone number.
func LocalDigits(normalized, countryCode string) string {
	return strings.TrimPrefix(normalized, countryCode)
}

func Mask(value string) string {
	switch {
	case value == "":
		return ""
	case strings.Contains(value, "@"):
		at := strings.LastIndex(value, "@")
		local := value[:at]
		if len(local) <= 1 {
			return "*" + value[at:]
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + value[at:]
	case len(value) > 4:
		return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
	default:
		return strings.Repeat("*", len(value))
	}
}
