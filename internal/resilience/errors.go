package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransportError tags a fetch failure as retryable or not. Retryable covers
// timeouts, 5xx-class responses, and rate-limit signals; non-retryable covers
// auth and other permanent failures that should fail the target immediately.
type TransportError struct {
	Err        error
	StatusCode int
	Retryable  bool
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a transient transport error with an optional HTTP
// status code.
func Retryable(err error, statusCode int) *TransportError {
	return &TransportError{Err: err, StatusCode: statusCode, Retryable: true}
}

// Permanent wraps err as a non-retryable transport error.
func Permanent(err error, statusCode int) *TransportError {
	return &TransportError{Err: err, StatusCode: statusCode, Retryable: false}
}

// IsRetryable reports whether the error chain indicates a transient failure
// worth retrying. Explicit TransportError tags win; otherwise network-level
// timeout and connection errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Heuristics for wrapped errors from HTTP clients that lose typing.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryableHTTPStatus reports whether the status code indicates a
// server-side condition that is safe to retry.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
