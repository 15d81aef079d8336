package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected ledger request. Every failure leaving
// this package carries exactly one kind; the HTTP layer maps kinds to
// status codes.
type ErrorKind string

const (
	// KindValidation: malformed or missing fields, rejected before any
	// store interaction.
	KindValidation ErrorKind = "validation"
	// KindPrecondition: insufficient balance, ineligible promotion,
	// exhausted pool, invalid state transition, role not allowed.
	// Rejected with no side effects.
	KindPrecondition ErrorKind = "precondition"
	// KindNotFound: unknown user, transaction, event or promotion.
	KindNotFound ErrorKind = "not_found"
	// KindConflict: concurrent mutation detected at commit time. Safe
	// to retry the whole request from scratch.
	KindConflict ErrorKind = "conflict"
	// KindConsistency: an internal invariant failed. Aborts the
	// enclosing store transaction and is never swallowed.
	KindConsistency ErrorKind = "consistency"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func Validationf(format string, args ...interface{}) *Error {
	return newError(KindValidation, nil, format, args...)
}

func Preconditionf(format string, args ...interface{}) *Error {
	return newError(KindPrecondition, nil, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return newError(KindNotFound, nil, format, args...)
}

func Conflictf(format string, args ...interface{}) *Error {
	return newError(KindConflict, nil, format, args...)
}

func Consistencyf(format string, args ...interface{}) *Error {
	return newError(KindConsistency, nil, format, args...)
}

// wrapf attaches a cause so errors.Is still matches repository
// sentinels through the taxonomy.
func wrapf(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return newError(kind, err, format, args...)
}

// KindOf extracts the taxonomy kind from an error chain. The second
// return is false for untyped (internal) errors.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
