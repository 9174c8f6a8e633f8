package util

import (
	"strings"
	"unicode"
)

// SanitizeInput trims a free-text field such as a display name, drops control
// characters and collapses runs of whitespace. Output escaping is left to the templates.
func SanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

var suspiciousPatterns = []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}

// ContainsSuspicious reports markup or template fragments in user input.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range suspiciousPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
