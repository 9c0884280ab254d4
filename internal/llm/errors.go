package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrCreditExhausted is returned when the caller has no budget left, either
// according to the usage ledger or because the upstream provider refused
// the request for billing reasons.
var ErrCreditExhausted = errors.New("insufficient credits")

// ProviderError is returned when a model provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// billingPhrases appear in provider error bodies when the account is out of funds.
var billingPhrases = []string{
	"credit balance is too low",
	"insufficient_quota",
	"billing",
}

// statusError converts a non-2xx provider response into an error.
func statusError(provider string, code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if code == http.StatusPaymentRequired {
		return fmt.Errorf("%s: %w", provider, ErrCreditExhausted)
	}
	lower := strings.ToLower(msg)
	for _, phrase := range billingPhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Errorf("%s: %w: %s", provider, ErrCreditExhausted, msg)
		}
	}
	return &ProviderError{Provider: provider, Message: msg, Code: code}
}

// isRetryable checks if the error suggests the call may succeed on retry.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrCreditExhausted) {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 429, 500, 502, 503, 529:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}
