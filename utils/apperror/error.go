package apperror

import (
	"errors"
	"fmt"
)

// AppError is the typed failure surfaced by every arbitrage operation.
// Two AppErrors are equal under errors.Is when their codes match.
type AppError struct {
	Code    Code
	Message string
	Context string
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Context != "" {
		msg = fmt.Sprintf("%s (context: %s)", msg, e.Context)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is implements errors.Is by comparing codes
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Option is a functional option for AppError
type Option func(*AppError)

// WithMessage sets a custom message
func WithMessage(message string) Option {
	return func(e *AppError) {
		e.Message = message
	}
}

// WithContext adds context information
func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

// WithCause wraps an underlying error
func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// New creates a new AppError with the given code and options
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:    code,
		Message: messages[code],
	}
	for _, opt := range opts {
		opt(err)
	}
	if err.Message == "" {
		err.Message = string(code)
	}
	return err
}

// Newf is New with a formatted context string.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return New(code, WithContext(fmt.Sprintf(format, args...)))
}

// Wrap wraps err into an AppError. An err that already carries an AppError is
// returned unchanged so the original code survives propagation.
func Wrap(err error, code Code, context string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	return New(code, WithContext(context), WithCause(err))
}

// GetCode extracts the error code from an error
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &AppError{Code: code})
}

// Retryable reports whether a whole attempt may be re-run from scratch against
// fresh reserves. Only execution-time staleness qualifies.
func Retryable(err error) bool {
	switch GetCode(err) {
	case CodeSlippageExceeded, CodeDeadlineExpired:
		return true
	default:
		return false
	}
}
