package httpx

import (
	"fmt"
	"strings"

	"github.com/roach88/gatesync/internal/fault"
)

// IsSuccessStatus returns true if the status code indicates success.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatus returns true if the status code indicates a retryable error.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return statusCode >= 500
	}
}

// CheckStatus maps a non-2xx response to a classified error: retryable
// statuses are Transient, every other error status is Rejected.
func CheckStatus(op string, resp *Response) error {
	if IsSuccessStatus(resp.StatusCode) {
		return nil
	}
	err := fmt.Errorf("status %d: %s", resp.StatusCode, snippet(resp.Body))
	if IsRetryableStatus(resp.StatusCode) {
		return fault.Transient(op, err)
	}
	return fault.Rejected(op, err)
}

// snippet trims a response body for error messages.
func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
