package supabase

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// FunctionError is a non-2xx response from the REST API or an edge function.
type FunctionError struct {
	Function   string // edge function name or REST table
	StatusCode int
	Body       string
}

const maxErrorBody = 300

func (e *FunctionError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n] + "..."
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Function, e.StatusCode, body)
}

// Retryable reports whether the status is worth another attempt:
// 408, 429 and any 5xx.
func (e *FunctionError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// retryableError marks transport failures that may succeed on retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Retryable marks err as retryable so IsRetryable reports true for it and
// anything wrapping it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable walks the wrap chain looking for a retryable marker or a
// retryable FunctionError.
func IsRetryable(err error) bool {
	for err != nil {
		if _, ok := err.(*retryableError); ok {
			return true
		}
		var fe *FunctionError
		if errors.As(err, &fe) {
			return fe.Retryable()
		}
		if r, ok := err.(interface{ Retryable() bool }); ok {
			return r.Retryable()
		}
		err = errors.Unwrap(err)
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *FunctionError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
