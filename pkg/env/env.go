package env

import (
	"os"
	"strings"
)

// Lookup returns the first non-blank value among keys, checked in order, or
// fallback when none is set. It lets a namespaced variable override a
// conventional one without config plumbing.
func Lookup(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
