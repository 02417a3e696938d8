package symbol

import "strings"

// DefaultSuffix is appended when a ticker carries no exchange qualifier.
const DefaultSuffix = ".US"

// Normalize canonicalizes a raw ticker to the upstream provider format:
// upper-cased, trimmed, and suffixed with the default market when no
// exchange separator is present (aapl -> AAPL.US, VOD.L stays VOD.L).
// Pure and idempotent.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return s
	}
	if !strings.Contains(s, ".") {
		s += DefaultSuffix
	}
	return s
}
