package models

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by this module unwraps to one of these.
var (
	ErrMissingValue    = errors.New("missing required value")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStateConflict   = errors.New("state conflict")
	ErrNotFound        = errors.New("not found")
	ErrIO              = errors.New("i/o failure")
)

// Error is a classified failure. Kind is one of the Err* sentinels above;
// Cause optionally carries a second kind or an underlying error.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Cause != nil && !isKind(e.Cause) {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func isKind(err error) bool {
	switch err {
	case ErrMissingValue, ErrInvalidArgument, ErrStateConflict, ErrNotFound, ErrIO:
		return true
	}
	return false
}

// NewError builds a classified error with a formatted message.
func NewError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError classifies cause under kind.
func WrapError(kind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func missingf(format string, args ...any) error {
	return NewError(ErrMissingValue, format, args...)
}

func invalidf(format string, args ...any) error {
	return NewError(ErrInvalidArgument, format, args...)
}
