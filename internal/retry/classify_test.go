package retry

import "testing"

func TestStrategyClassification(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"HTTP 403: reCAPTCHA verification required", StrategyRecaptcha},
		{"status 403 RECAPTCHA challenge", StrategyRecaptcha},
		{"HTTP 500 internal server error", StrategyServerError},
		{"upstream returned 503 service unavailable", StrategyServerError},
		{"bad gateway from edge", StrategyServerError},
		{"request timeout after 30s", StrategyConnectionError},
		{"read tcp: connection reset by peer", StrategyConnectionError},
		{"dial tcp: connection refused", StrategyConnectionError},
		{"write: broken pipe", StrategyConnectionError},
		{"network error while streaming", StrategyConnectionError},
		{"content policy violation", StrategyDefault},
		{"something unexpected happened", StrategyDefault},
		// 403 alone, without a CAPTCHA keyword, is not the recaptcha case.
		{"HTTP 403 forbidden", StrategyDefault},
		// recaptcha wins over a 5xx mention in the same message.
		{"403 recaptcha challenge after 500 upstream", StrategyRecaptcha},
	}

	for _, tc := range cases {
		if got := Strategy(tc.msg); got != tc.want {
			t.Errorf("Strategy(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"prompt violates content policy", CategoryPermanent},
		{"401 Unauthorized: invalid api key", CategoryPermanent},
		{"account suspended", CategoryPermanent},
		{"request timed out", CategoryRetryable},
		{"HTTP 502 from upstream", CategoryRetryable},
		{"rate limit exceeded, try again", CategoryRetryable},
		{"mystery failure", CategoryUnknown},
		// Permanent patterns take precedence over retryable ones.
		{"forbidden: too many requests", CategoryPermanent},
	}

	for _, tc := range cases {
		if got := Categorize(tc.msg); got != tc.want {
			t.Errorf("Categorize(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
}
