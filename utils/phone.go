package utils

import (
	"os"
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

func defaultCountryCode() string {
	if code := os.Getenv("DEFAULT_COUNTRY_CODE"); code != "" {
		return code
	}
	return "222"
}

// FormatPhoneNumber strips all non-digit characters and prefixes the default
// country code when none is present.
func FormatPhoneNumber(phoneNumber string) string {
	digits := nonDigits.ReplaceAllString(phoneNumber, "")
	code := defaultCountryCode()

	if len(digits) > 0 && !strings.HasPrefix(digits, code) {
		digits = strings.TrimLeft(digits, "0")
		digits = code + digits
	}
	return digits
}

// ValidatePhoneNumber checks that a national number is 7 to 10 digits once
// cleaned.
func ValidatePhoneNumber(phoneNumber string) bool {
	cleaned := nonDigits.ReplaceAllString(phoneNumber, "")
	cleaned = strings.TrimPrefix(cleaned, defaultCountryCode())
	return len(cleaned) >= 7 && len(cleaned) <= 10
}

// NormalizePhoneNumber normalizes a phone number for database storage.
func NormalizePhoneNumber(phoneNumber string) string {
	return FormatPhoneNumber(phoneNumber)
}
