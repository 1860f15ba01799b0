package health

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnknownProvider marks a probe against a name missing from the registry.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNotConfigured marks a provider that lacks the credentials or command
	// needed to serve requests.
	ErrNotConfigured = errors.New("provider not configured")
)

// quotaPatterns are substrings that mark a provider error as quota or rate
// related rather than a hard failure.
var quotaPatterns = []string{
	"quota exceeded",
	"quota_exceeded",
	"insufficient_quota",
	"rate limit",
	"rate_limit_exceeded",
	"too many requests",
	"requests per minute",
	"tokens per minute",
	"daily limit",
	"billing",
}

// IsQuotaError detects whether a provider failure is quota or rate limiting,
// which warrants a cooldown instead of an unhealthy mark.
func IsQuotaError(statusCode int, responseBody string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(responseBody)
	for _, pattern := range quotaPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// ParseCooldownDuration picks a cooldown length appropriate to the error.
// Daily/billing limits cool down for a day, per-minute limits for minutes.
func ParseCooldownDuration(statusCode int, responseBody string) time.Duration {
	lower := strings.ToLower(responseBody)

	if strings.Contains(lower, "daily limit") ||
		strings.Contains(lower, "billing") ||
		strings.Contains(lower, "insufficient_quota") {
		return 24 * time.Hour
	}

	if statusCode == http.StatusTooManyRequests ||
		strings.Contains(lower, "requests per minute") ||
		strings.Contains(lower, "tokens per minute") {
		return 5 * time.Minute
	}

	return 1 * time.Hour
}
