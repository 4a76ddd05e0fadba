package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries the per-field messages of input rejected by a service.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error {
	return err.Err
}

// shutdown is returned when the app cannot keep serving, eg. its storage client was closed.
type shutdown struct {
	message string
	cause   error
}

func NewShutdownError(msg string, cause ...error) error {
	s := &shutdown{message: msg}
	if len(cause) > 0 {
		s.cause = cause[0]
	}
	return s
}

func (s *shutdown) Error() string {
	if s.cause == nil {
		return s.message
	}
	return s.message + ": " + s.cause.Error()
}

func (s *shutdown) Unwrap() error {
	return s.cause
}

// IsShutdown reports whether err, or any error it wraps, asks for the app to stop.
func IsShutdown(err error) bool {
	var s *shutdown
	return errors.As(err, &s)
}
