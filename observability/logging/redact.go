package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder written in place of sensitive values.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"component": {},
	"method":    {},
	"requestid": {},
	"caller":    {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. Bearer credentials are always redacted.
func MaskField(key, value string) slog.Attr {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return slog.String(key, value)
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "bearer ") || !IsAllowlisted(key) {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, value)
}
