package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how the pipeline reacts to them.
type ErrorKind int

const (
	// KindInternal is an unexpected failure (including recovered panics).
	KindInternal ErrorKind = iota
	// KindValidation is malformed input. Terminal, never retried.
	KindValidation
	// KindCollaborator is a template, enhancement or generation client failure.
	// Always absorbed by a fallback layer when one applies.
	KindCollaborator
	// KindTimeout is the two-stage processor's workflow deadline firing.
	KindTimeout
	// KindAggregate is a batch in which every item failed.
	KindAggregate
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCollaborator:
		return "collaborator"
	case KindTimeout:
		return "timeout"
	case KindAggregate:
		return "aggregate"
	default:
		return "internal"
	}
}

// Error is the error type returned across package boundaries.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a KindValidation error.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Collaborator wraps a collaborator failure.
func Collaborator(op, message string, err error) error {
	return &Error{Kind: KindCollaborator, Op: op, Message: message, Err: err}
}

// Timeout builds a KindTimeout error.
func Timeout(op, message string, err error) error {
	return &Error{Kind: KindTimeout, Op: op, Message: message, Err: err}
}

// Aggregate wraps the joined per-item errors of a fully failed batch.
func Aggregate(op, message string, errs ...error) error {
	return &Error{Kind: KindAggregate, Op: op, Message: message, Err: errors.Join(errs...)}
}

// Internal wraps an unexpected failure.
func Internal(op, message string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Message: message, Err: err}
}

// Recovered converts a recovered panic value into a KindInternal error.
func Recovered(op string, v any) error {
	if err, ok := v.(error); ok {
		return Internal(op, "panic recovered", err)
	}
	return Internal(op, fmt.Sprintf("panic recovered: %v", v), nil)
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal when err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsValidation reports whether err is a terminal validation failure.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsTimeout reports whether err is a processor timeout.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == KindTimeout
}
