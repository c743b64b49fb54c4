package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by Client is an *Error whose Kind is one of
// these, so callers can use errors.Is.
var (
	ErrTransport = errors.New("transport error")
	ErrStatus    = errors.New("unexpected status")
	ErrDecode    = errors.New("decode error")
)

type Error struct {
	Op         Operation
	Kind       error
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ErrStatus:
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether issuing the same request again might succeed.
// Decode failures and client errors will not fix themselves.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrTransport:
		return true
	case ErrStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryable is Retryable for any error.
func IsRetryable(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// outcome labels err for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrDecode):
		return "decode"
	}
	return "transport"
}
