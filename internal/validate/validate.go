package validate

import (
	"regexp"
	"strings"
)

var (
	reID    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reDir   = regexp.MustCompile(`^(add|remove)$`)
	reToken = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)
)

// ID validates a simple resource identifier (product/terminal ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Direction validates allowed adjustment direction enums.
func Direction(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reDir.MatchString(s)
}

// Magnitude validates an adjustment quantity. Zero and negative values are
// programmer errors at the boundary and never reach the ledger.
func Magnitude(n int) bool {
	return n >= 1 && n <= 1_000_000
}

// Token validates a caller-supplied idempotency token.
func Token(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reToken.MatchString(s)
}

// Note trims a free-text adjustment note. Empty is allowed.
func Note(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return "", false
	}
	return s, true
}
