// Package pyerrors defines the structured error kinds the dispatcher core
// distinguishes (spec §7) and a chainable Error type that preserves cause
// chains while remaining usable with errors.Is/As, mirroring the teacher's
// toolerrors.ToolError.
package pyerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure observed by the dispatcher core. Policy for each
// kind is enforced by the package that raises it (mapping, wrap, dispatch);
// Kind only carries the classification so callers and tests can distinguish
// them with errors.Is.
type Kind string

const (
	// KindMappingLoad: a mapping document failed to parse or validate.
	// Policy: log, skip the document, continue loading the rest.
	KindMappingLoad Kind = "mapping_load"

	// KindWrappingUnsupported: the target attribute could not be replaced
	// (e.g. an unaddressable or immutable container). Policy: log at debug,
	// return the original unwrapped.
	KindWrappingUnsupported Kind = "wrapping_unsupported"

	// KindLoggerNotFound: an event resolved to no registered logger.
	// Policy: warn once per event, skip.
	KindLoggerNotFound Kind = "logger_not_found"

	// KindLoggerFailure: a logger's Pre/Post phase raised. Policy: set a
	// failure tag on the run, continue (the target still executes).
	KindLoggerFailure Kind = "logger_failure"

	// KindTargetFailure: the wrapped target (or the callback chain) raised.
	// Policy: retry-on-fail path if enabled, else propagate.
	KindTargetFailure Kind = "target_failure"

	// KindTimingAlreadyDefined: a timing key was recorded twice for one
	// call. Policy: ignored, benign.
	KindTimingAlreadyDefined Kind = "timing_already_defined"

	// KindPassThrough: a sentinel failure that must never be caught by the
	// defensive logger wrapper and must propagate verbatim.
	KindPassThrough Kind = "pass_through"

	// KindDependencyMissing: a logger's declared dependency is unavailable.
	// Policy: warn, disable the logger for this call.
	KindDependencyMissing Kind = "dependency_missing"

	// KindNoCallAllowed: a logger refused to run. Policy: short-circuit to
	// the next callback in the chain.
	KindNoCallAllowed Kind = "no_call_allowed"
)

// Error is a structured failure that preserves a human-readable message, a
// Kind classification and an optional causal chain. It implements
// errors.Is/As via Unwrap so callers can test for a Kind or an underlying
// error without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with the provided message.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind, formatting message like fmt.Sprintf.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs an Error of the given kind that chains an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the causal error, enabling errors.Is/As to walk the chain.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, pyerrors.New(pyerrors.KindPassThrough, "")) or, more
// idiomatically, use IsKind below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// IsKind reports whether err is, or wraps, a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
