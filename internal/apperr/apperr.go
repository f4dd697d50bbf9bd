// Package apperr defines the error kinds surfaced by the calculator.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindMissingInput    Kind = "missing_input"
	KindUnknownCategory Kind = "unknown_category"
	KindNotFound        Kind = "not_found"
	KindDataError       Kind = "data_error"
	KindUnauthorized    Kind = "unauthorized"
	KindInternal        Kind = "internal"
)

// Error carries a kind, a user-facing message and, optionally, the
// offending field and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invalid reports a non-positive or otherwise unusable value in field.
func Invalid(field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Missing reports required data that was not supplied at all.
func Missing(field, format string, args ...any) *Error {
	return &Error{Kind: KindMissingInput, Field: field, Message: fmt.Sprintf(format, args...)}
}

func UnknownCategory(format string, args ...any) *Error {
	return &Error{Kind: KindUnknownCategory, Field: "category", Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing row of the given entity.
func NotFound(entity string, id int64) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", entity, id)}
}

func Data(format string, args ...any) *Error {
	return &Error{Kind: KindDataError, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
