package retry

import "strings"

// Strategy names. Every raw error string maps to exactly one; the match is
// pure string inspection because the upstream client surfaces opaque
// transport and API errors with no structured codes.
const (
	StrategyRecaptcha       = "recaptcha"
	StrategyServerError     = "server_error"
	StrategyConnectionError = "connection_error"
	StrategyDefault         = "default"
)

var serverErrorIndicators = []string{
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"server error",
	"bad gateway",
	"service unavailable",
}

var connectionErrorIndicators = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"connection aborted",
	"broken pipe",
	"network error",
}

// Strategy classifies a raw error string into a retry strategy. Checks run
// in precedence order: a 403+CAPTCHA challenge beats a 5xx indicator, which
// beats a connection-level failure.
func Strategy(errMsg string) string {
	lower := strings.ToLower(errMsg)

	if strings.Contains(errMsg, "403") && strings.Contains(lower, "recaptcha") {
		return StrategyRecaptcha
	}
	for _, indicator := range serverErrorIndicators {
		if strings.Contains(lower, indicator) {
			return StrategyServerError
		}
	}
	for _, indicator := range connectionErrorIndicators {
		if strings.Contains(lower, indicator) {
			return StrategyConnectionError
		}
	}
	return StrategyDefault
}

// Result categories recorded on failed items. Permanent failures are never
// skipped by the retry loop itself; the category only drives export
// filtering so an operator can tell "worth re-running" from "will fail
// again".
const (
	CategoryPermanent = "permanent"
	CategoryRetryable = "retryable"
	CategoryUnknown   = "unknown"
)

var permanentPatterns = []string{
	"content policy",
	"blocked",
	"authentication",
	"unauthorized",
	"forbidden",
	"invalid api key",
	"account suspended",
	"inappropriate",
	"violates",
	"not allowed",
}

var retryablePatterns = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"server error",
	"internal error",
	"503",
	"502",
	"500",
	"connection",
	"network",
	"temporarily",
	"try again",
	"overloaded",
	"recaptcha",
}

// Categorize buckets a terminal error for reporting.
func Categorize(errMsg string) string {
	lower := strings.ToLower(errMsg)

	for _, pattern := range permanentPatterns {
		if strings.Contains(lower, pattern) {
			return CategoryPermanent
		}
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(lower, pattern) {
			return CategoryRetryable
		}
	}
	return CategoryUnknown
}
