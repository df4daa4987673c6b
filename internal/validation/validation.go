// Package validation checks user-entered city names before they reach the geocoder.
package validation

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrCityEmpty is returned when the input is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")
	// ErrCityTooShort is returned when the input is below the minimum length.
	ErrCityTooShort = errors.New("city too short")
	// ErrCityTooLong is returned when the input exceeds the maximum length.
	ErrCityTooLong = errors.New("city too long")
	// ErrCityInvalidChars is returned when the input contains disallowed characters.
	ErrCityInvalidChars = errors.New("city contains invalid characters")
)

// ValidateCity trims input, bounds its length in runes (a bound <= 0 is
// ignored) and restricts it to letters, digits, space, comma, hyphen, period
// and apostrophe, so "St. John's" and "Washington, D.C." pass. Returns the
// trimmed string; case is left as typed since the geocoder is case-insensitive.
func ValidateCity(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
