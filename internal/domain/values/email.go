package values

import (
	"strings"
)

// NormalizeEmail lowercases and trims an address so that matching is
// case-insensitive. Empty input stays empty.
func NormalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// EmailsMatch reports whether two addresses are the same ignoring case.
// Two empty addresses never match.
func EmailsMatch(a, b string) bool {
	na, nb := NormalizeEmail(a), NormalizeEmail(b)
	return na != "" && na == nb
}
