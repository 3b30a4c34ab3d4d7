package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// TransientError marks an error as safe to retry (a failed proxy waterfall,
// a 429 or 5xx, a network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err (or anything in its chain) is a
// TransientError or a network-level failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
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

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Attempt is one failed call recorded by the retry controller.
type Attempt struct {
	Number int
	Err    error
	// Wait is the backoff slept after this attempt. Zero for the last one.
	Wait time.Duration
}

// RetryError is returned when a retried operation ultimately fails. It keeps
// the full attempt history and unwraps to the last error.
type RetryError struct {
	Target   string
	Attempts []Attempt
}

func (e *RetryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: failed after %d attempt(s)", e.Target, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; attempt %d: %v", a.Number, a.Err)
	}
	return b.String()
}

// Unwrap returns the error from the final attempt.
func (e *RetryError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// Last returns the final attempt's error.
func (e *RetryError) Last() error {
	return e.Unwrap()
}
