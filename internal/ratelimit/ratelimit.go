// Package ratelimit detects provider rate-limit conditions in agent
// output and computes the escalating backoff schedule applied to them.
package ratelimit

import (
	"strings"
	"time"
)

// signatures are known provider error phrases, matched case-insensitively
// as substrings. The set is fixed: agent output is free text, so matching
// stays deliberately loose.
var signatures = []string{
	"rate limit",
	"rate-limited",
	"too many requests",
	"quota exceeded",
	"quota reached",
	"usage limit reached",
	"overloaded_error",
	"resource has been exhausted",
	"capacity constraints",
}

// Detected reports whether output contains a rate-limit signature.
func Detected(output string) bool {
	lower := strings.ToLower(output)
	for _, sig := range signatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// Backoff returns the pause duration for the given attempt count. Zero
// means no further automatic retry.
//
//	attempt 0 -> 1h, attempt 1 -> 2h, attempt 2 -> 3h, attempt >= 3 -> 0
func Backoff(attempt int) time.Duration {
	switch {
	case attempt < 0:
		return 0
	case attempt <= 2:
		return time.Duration(attempt+1) * time.Hour
	default:
		return 0
	}
}
