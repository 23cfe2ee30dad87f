package logger

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/yndnr/railstate-go/internal/config"
)

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"credential",
	"bearer",
}

// storeURLPattern finds store URLs embedded in longer strings, such as
// error messages.
var storeURLPattern = regexp.MustCompile(`rediss?://[^\s"']+`)

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive redacts a if its key or value looks sensitive.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if masked := RedactString(s); masked != s {
			return slog.String(a.Key, masked)
		}
	case slog.KindAny:
		// errors carry store URLs in their message
		if err, ok := a.Value.Any().(error); ok {
			s := err.Error()
			if masked := RedactString(s); masked != s {
				return slog.String(a.Key, masked)
			}
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// RedactString masks the password of every store URL in value.
func RedactString(value string) string {
	if !strings.Contains(value, "redis") {
		return value
	}
	return storeURLPattern.ReplaceAllStringFunc(value, config.MaskURL)
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
