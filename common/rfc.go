package common

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeRFC normalizes and validates a Mexican RFC (Registro Federal de
// Contribuyentes).
//
// An RFC is 12 characters for legal entities and 13 for individuals: a 3-4
// letter name part, a 6 digit date (YYMMDD) and a 3 character homoclave.
func NormalizeRFC(in string) (string, error) {
	s := strings.TrimSpace(in)
	if s == "" {
		return "", nil
	}

	// Be forgiving about common separators.
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '-' || unicode.IsSpace(r):
			return -1
		default:
			return r
		}
	}, s)
	s = strings.ToUpper(s)

	// rune based, Ñ is legal in the name part and is not a single byte
	runes := []rune(s)
	if len(runes) != 12 && len(runes) != 13 {
		return "", fmt.Errorf("rfc must be 12 or 13 characters, got %d", len(runes))
	}

	for _, c := range runes[:len(runes)-9] {
		isUpper := c >= 'A' && c <= 'Z'
		if !isUpper && c != '&' && c != 'Ñ' {
			return "", fmt.Errorf("rfc name part must be letters, got %q", c)
		}
	}
	for _, c := range runes[len(runes)-9 : len(runes)-3] {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("rfc date part must be digits, got %q", c)
		}
	}
	for _, c := range runes[len(runes)-3:] {
		isDigit := c >= '0' && c <= '9'
		isUpper := c >= 'A' && c <= 'Z'
		if !isDigit && !isUpper {
			return "", fmt.Errorf("rfc homoclave must be alphanumeric A-Z0-9, got %q", c)
		}
	}

	return s, nil
}
