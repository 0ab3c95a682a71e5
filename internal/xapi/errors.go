package xapi

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the X API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api error %d: %s", e.Status, truncateBody(e.Body))
}

func truncateBody(b string) string {
	if len(b) > 300 {
		return b[:300] + "..."
	}
	return b
}

// ErrNetworkBlocked marks a request intercepted by upstream network policy:
// an HTML block page came back instead of an API response. Needs human
// remediation, never a retry.
var ErrNetworkBlocked = errors.New("x api request blocked by network policy")

var blockPageMarkers = []string{"<html", "<!doctype", "access denied", "blocked by"}

// looksLikeBlockPage pattern-matches a payload that is an HTML interception
// page rather than the API's JSON error shape.
func looksLikeBlockPage(body string) bool {
	lower := strings.ToLower(strings.TrimSpace(body))
	if strings.HasPrefix(lower, "{") || strings.HasPrefix(lower, "[") {
		return false
	}
	for _, m := range blockPageMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// nonRetryable is implemented by error types that cannot succeed on retry
// without external remediation (re-auth, billing, credential fix).
type nonRetryable interface{ NonRetryable() bool }

// IsNonRetryable classifies an error for the job framework: true means the
// run should log a blocked outcome and stop instead of retrying.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetworkBlocked) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 400, 401, 402, 403:
			return true
		}
		return false
	}
	var nr nonRetryable
	if errors.As(err, &nr) {
		return nr.NonRetryable()
	}
	return false
}
