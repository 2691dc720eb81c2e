// Package xerrors defines the error taxonomy shared across the group
// core: argument validation, transport failures, unsupported calls and
// fatal construction errors. Every kind wraps its cause with
// github.com/pkg/errors so a stack trace survives across goroutine
// boundaries (the worker that captures a failure is almost never the
// caller that observes it on Wait).
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error raised anywhere in the group core: which
// stage of the propagation policy raised it and how a caller should
// react.
type Kind int

const (
	// KindArgument marks a synchronous validation failure raised before
	// a work item is ever enqueued.
	KindArgument Kind = iota
	// KindTransport marks a connect/collective/send/recv failure or
	// timeout captured inside AsyncWork.run and surfaced on Wait.
	KindTransport
	// KindUnsupported marks a call to an operation the core
	// deliberately does not implement (e.g. GetGroupRank).
	KindUnsupported
	// KindFatal marks an unrecoverable error: a constructor-time failure
	// that leaves the group not constructed, or an invalid reduce op
	// rejected when a collective is submitted.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "ArgumentError"
	case KindTransport:
		return "TransportError"
	case KindUnsupported:
		return "UnsupportedError"
	case KindFatal:
		return "Fatal"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type raised by the group core. It keeps
// the classifying Kind alongside the wrapped cause so callers can
// branch with errors.As without string matching.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "allreduce", "fullmesh"
	err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// Cause satisfies github.com/pkg/errors' Causer interface so
// errors.Cause(err) still unwraps through an *Error.
func (e *Error) Cause() error { return e.err }

func newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, err: errors.Errorf(format, args...)}
}

func wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, err: errors.WithStack(cause)}
}

// Argument builds a validation error, formatted like fmt.Errorf.
func Argument(op, format string, args ...interface{}) *Error {
	return newf(KindArgument, op, format, args...)
}

// Transport wraps a transport-layer failure (connect, collective,
// send/recv, timeout) with its origin operation.
func Transport(op string, cause error) *Error {
	return wrap(KindTransport, op, cause)
}

// Transportf builds a transport error without a pre-existing cause.
func Transportf(op, format string, args ...interface{}) *Error {
	return newf(KindTransport, op, format, args...)
}

// Unsupported builds an unsupported-operation error.
func Unsupported(op, format string, args ...interface{}) *Error {
	return newf(KindUnsupported, op, format, args...)
}

// Fatalf builds a fatal error.
func Fatalf(op, format string, args ...interface{}) *Error {
	return newf(KindFatal, op, format, args...)
}

// Fatal wraps an existing cause as a fatal constructor error.
func Fatal(op string, cause error) *Error {
	return wrap(KindFatal, op, cause)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
