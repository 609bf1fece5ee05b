package jid

import (
	"strings"
)

// Whether the raw string is a phone-number user identifier. This only checks the server suffix.
func IsPN(raw string) bool {
	return strings.HasSuffix(raw, "@"+ServerPN)
}

// Whether the raw string is a linked user identifier. This only checks the server suffix.
func IsLID(raw string) bool {
	return strings.HasSuffix(raw, "@"+ServerLID)
}
