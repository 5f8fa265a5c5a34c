// Package resilience classifies pipeline failures. Runs are never retried
// internally; the classification tells an operator whether restarting a
// failed run is likely to help.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/odflow/internal/model"
)

// TransientError wraps an error caused by a temporary condition (5xx,
// network timeout, connection reset).
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

// IsTransient reports whether err (or any error in its chain) is a
// TransientError or looks like a network-level hiccup.
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

// IsTransientHTTPStatus reports whether an HTTP status code indicates a
// temporary server-side condition. 429 is excluded: quota violations are
// scheduling errors, not transient ones.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Class names a failure category for run results and metric labels.
type Class string

const (
	ClassNone      Class = ""
	ClassSchema    Class = "schema"
	ClassQuota     Class = "quota"
	ClassShape     Class = "shape"
	ClassTransient Class = "transient"
	ClassPermanent Class = "permanent"
)

// Classify maps err onto a failure class. Configuration errors take
// precedence over transport conditions.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var se *model.SchemaError
	switch {
	case errors.As(err, &se):
		return ClassSchema
	case errors.Is(err, model.ErrQuotaExceeded):
		return ClassQuota
	case errors.Is(err, model.ErrShape):
		return ClassShape
	case IsTransient(err):
		return ClassTransient
	}
	return ClassPermanent
}

// Restartable reports whether restarting the whole run may succeed without
// changing configuration or inputs.
func Restartable(err error) bool {
	return Classify(err) == ClassTransient
}
