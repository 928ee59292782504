// Package apperr defines the error taxonomy shared by the store, memory
// engine, jobs, and tool façade: InvalidParams, NotFound, Conflict,
// Transient, Logic, and Data. Boundaries (HTTP handlers, the MCP server,
// job handlers) map a category to a status/JSON-RPC code once, here —
// nothing deeper in the call stack should know about transport codes.
package apperr

import (
	"errors"
	"fmt"
)

type Category string

const (
	InvalidParams Category = "invalid_params"
	NotFound      Category = "not_found"
	Conflict      Category = "conflict"
	Transient     Category = "transient"
	Logic         Category = "logic"
	Data          Category = "data"
)

// Error wraps an underlying cause with a category and human-readable message.
type Error struct {
	Category Category
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(cat Category, message string) *Error {
	return &Error{Category: cat, Message: message}
}

func Wrap(cat Category, message string, cause error) *Error {
	return &Error{Category: cat, Message: message, Cause: cause}
}

func InvalidParamsf(format string, args ...any) *Error {
	return New(InvalidParams, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func Transientf(err error, format string, args ...any) *Error {
	return Wrap(Transient, fmt.Sprintf(format, args...), err)
}

func Logicf(format string, args ...any) *Error {
	return New(Logic, fmt.Sprintf(format, args...))
}

// CategoryOf extracts the category of err, defaulting to Transient for
// errors the taxonomy doesn't recognize (unknown failures are treated as
// retryable/internal rather than silently swallowed).
func CategoryOf(err error) Category {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Category
	}
	return Transient
}

// Retryable reports whether a worker should requeue the job that produced err.
func Retryable(err error) bool {
	switch CategoryOf(err) {
	case InvalidParams, NotFound, Conflict, Data:
		return false
	default:
		return true
	}
}
