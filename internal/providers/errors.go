package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	KindConfiguration  ErrorKind = "configuration_error"
	KindValidation     ErrorKind = "validation_error"
	KindAuth           ErrorKind = "authentication_error"
	KindRateLimit      ErrorKind = "rate_limit_error"
	KindTransient      ErrorKind = "transient_error"
	KindRetryExhausted ErrorKind = "upstream_retried_error"
	KindBackend        ErrorKind = "backend_error"
	KindUnclassified   ErrorKind = "unclassified_error"
	KindCanceled       ErrorKind = "canceled"
)

// StatusClientClosedRequest is reported when the caller went away mid-call.
const StatusClientClosedRequest = 499

// Error is the structured failure returned by every provider call path.
type Error struct {
	Kind    ErrorKind
	Family  Family
	Status  int // backend HTTP status, 0 when no response was received
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Family, e.Kind, e.Status, e.Message)
	}

	return fmt.Sprintf("%s: %s: %s", e.Family, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to the status returned to the caller.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindConfiguration:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindTransient, KindRetryExhausted:
		return http.StatusBadGateway
	case KindBackend:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether err is a transient backend failure.
func IsRetryable(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindTransient
}

// ErrNotConfigured is wrapped into configuration errors.
var ErrNotConfigured = errors.New("backend not configured")

func notConfiguredError(family Family) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Family:  family,
		Message: fmt.Sprintf("%s client not initialized, set its API key", family),
		Cause:   ErrNotConfigured,
	}
}

// ClassifyStatus builds the error for a non-2xx backend response.
func ClassifyStatus(family Family, status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}

	kind := KindBackend
	switch {
	case status == http.StatusBadRequest:
		kind = KindValidation
	case status == http.StatusUnauthorized:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status >= http.StatusInternalServerError:
		kind = KindTransient
	}

	return &Error{Kind: kind, Family: family, Status: status, Message: message}
}

// classifyError turns any error escaping a backend call into an *Error.
// A done caller context always wins over the backend's own classification.
func classifyError(ctx context.Context, family Family, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return canceledError(family, ctxErr)
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	return &Error{Kind: KindUnclassified, Family: family, Message: err.Error(), Cause: err}
}

func canceledError(family Family, cause error) *Error {
	return &Error{Kind: KindCanceled, Family: family, Message: "request abandoned: " + cause.Error(), Cause: cause}
}
