package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a lookup for an identifier that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID reports an identifier that is not a well-formed UUID.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrInvalidInput reports a caller-supplied argument that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict reports a lifecycle transition that is not legal from the current state.
	ErrConflict = errors.New("conflict")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// Message returns the human-facing part of err when it is an AppError, else err.Error().
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Msg != "" {
		return appErr.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
