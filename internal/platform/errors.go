package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransientError marks a failure worth retrying with backoff: network
// trouble or a 5xx from the platform.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// QuotaError means the platform refused the call on quota grounds. The run
// stops accepting new items; finished and in-flight items are kept.
type QuotaError struct {
	Op  string
	Err error
}

func (e *QuotaError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *QuotaError) Unwrap() error { return e.Err }

// ValidationError marks a per-item problem (malformed metadata, missing
// payload, platform 4xx). The item is skipped and reported, never retried.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsQuota reports whether err signals quota exhaustion.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// IsValidation reports whether err is a per-item validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ClassifyHTTP wraps an HTTP-level failure into the taxonomy. A 403 carrying
// a quota reason becomes QuotaError, other 4xx become ValidationError, and
// everything 5xx is transient.
func ClassifyHTTP(op string, status int, body string, quotaHint bool) error {
	base := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusForbidden && quotaHint:
		return &QuotaError{Op: op, Err: base}
	case status == http.StatusTooManyRequests:
		return &QuotaError{Op: op, Err: base}
	case status >= 500:
		return &TransientError{Op: op, Err: base}
	case status >= 400:
		return &ValidationError{Op: op, Err: base}
	default:
		return &TransientError{Op: op, Err: base}
	}
}
