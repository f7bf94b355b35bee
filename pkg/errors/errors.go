package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedRecord = errors.New("malformed email record")
	ErrWriteConflict   = errors.New("concurrent index commit")
	ErrCorruptIndex    = errors.New("corrupt index")
	ErrQuerySyntax     = errors.New("query syntax error")
	ErrUnknownField    = errors.New("unknown search field")
	ErrMissingDocument = errors.New("document metadata missing")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// SyntaxError reports a malformed query string together with the byte offset
// of the offending character. It unwraps to ErrQuerySyntax.
type SyntaxError struct {
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Offset, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return ErrQuerySyntax
}

func Syntax(offset int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// UnknownFieldError reports a query that scopes to a field name outside the
// closed set of indexed fields. It unwraps to ErrUnknownField.
type UnknownFieldError struct {
	Name   string
	Offset int
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown search field %q at offset %d", e.Name, e.Offset)
}

func (e *UnknownFieldError) Unwrap() error {
	return ErrUnknownField
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQuerySyntax),
		errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrMalformedRecord),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrWriteConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
