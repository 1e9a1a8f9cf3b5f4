// Package errs is the coordinator's error taxonomy. Transport layers map a
// Code to a status; services wrap causes with New/Wrap and sentinel matching
// works through errors.Is.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	Unauthorized             Code = "unauthorized"
	NotFound                 Code = "not_found"
	LeaseConflict            Code = "lease_conflict"
	TransientExternalFailure Code = "transient_external_failure"
	TerminalFailure          Code = "terminal_failure"
	BreakerOpen              Code = "breaker_open"
	RateLimited              Code = "rate_limited"
	Invalid                  Code = "invalid"
	Internal                 Code = "internal"
)

var (
	ErrUnauthorized    = &Error{Code: Unauthorized, Msg: "unauthorized"}
	ErrNotFound        = &Error{Code: NotFound, Msg: "not found"}
	ErrLeaseConflict   = &Error{Code: LeaseConflict, Msg: "lease held by another runner or expired"}
	ErrTransient       = &Error{Code: TransientExternalFailure, Msg: "transient external failure"}
	ErrTerminalFailure = &Error{Code: TerminalFailure, Msg: "terminal failure"}
	ErrBreakerOpen     = &Error{Code: BreakerOpen, Msg: "circuit breaker open"}
	ErrRateLimited     = &Error{Code: RateLimited, Msg: "rate limited"}
	ErrInvalid         = &Error{Code: Invalid, Msg: "invalid request"}
)

type Error struct {
	Code Code
	Msg  string
	// RetryAfter hints when a gated action may be retried.
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same Code, so errors.Is(err, ErrNotFound) works on wrapped values.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, cause error, msg string) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// WithRetryAfter returns a copy of e carrying the hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	cp := *e
	cp.RetryAfter = d
	return &cp
}

// CodeOf returns Internal for errors outside the taxonomy.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func HTTPStatus(code Code) int {
	switch code {
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case LeaseConflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case BreakerOpen:
		return http.StatusServiceUnavailable
	case Invalid:
		return http.StatusBadRequest
	case TerminalFailure:
		// terminal task failure is a successful report
		return http.StatusOK
	case TransientExternalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the same request later.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case TransientExternalFailure, RateLimited, BreakerOpen:
		return true
	}
	return false
}
