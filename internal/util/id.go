package util

import (
	"crypto/rand"
	"strings"
	"time"
	"unicode"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// StampLayout is the second-granularity timestamp used in record names.
const StampLayout = "20060102_150405"

// GenerateShortID returns a 6-character lowercase alphanumeric string using cryptographic randomness.
func GenerateShortID() (string, error) {
	bytes := make([]byte, 6)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	for i := range bytes {
		bytes[i] = alphanumeric[int(bytes[i])%len(alphanumeric)]
	}

	return string(bytes), nil
}

// Stamp formats t (in UTC) as yyyymmdd_HHMMSS.
func Stamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// Slug converts a string to a lowercase identifier joined by sep.
// It lowercases the string, replaces spaces, underscores and hyphens with sep,
// removes other non-alphanumeric characters, collapses repeated separators,
// and trims leading/trailing separators.
func Slug(s string, sep rune) string {
	var result strings.Builder

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(unicode.ToLower(r))
		} else if r == ' ' || r == '_' || r == '-' {
			result.WriteRune(sep)
		}
	}

	str := result.String()
	double := string([]rune{sep, sep})
	for strings.Contains(str, double) {
		str = strings.ReplaceAll(str, double, string(sep))
	}

	return strings.Trim(str, string(sep))
}
