package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind classifies an error so callers can dispatch on failure class without
// matching message text. The taxonomy is closed; nothing in this codebase
// retries automatically, errors propagate to the caller for decision.
type Kind string

const (
	// KindUnknown is the zero value for errors carrying no classification.
	KindUnknown Kind = ""

	// KindValidation marks bad caller input, recoverable by correcting it.
	KindValidation Kind = "validation"
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound Kind = "not_found"
	// KindInvalidState marks an operation that is illegal for the entity's
	// current state, e.g. repaying an entry that is not a debt.
	KindInvalidState Kind = "invalid_state"
	// KindConfig marks a missing credential or endpoint, fatal for the call.
	KindConfig Kind = "config"
	// KindTransport marks an upstream HTTP failure: non-2xx status or an
	// unparsable body.
	KindTransport Kind = "transport"
	// KindProtocol marks a well-formed upstream response that carries an
	// application-level error object.
	KindProtocol Kind = "protocol"
	// KindTimeout marks an upstream call cancelled by its configured bound.
	KindTimeout Kind = "timeout"
	// KindUnknownAction marks an action value outside the closed intent
	// enum. Should be unreachable; handled defensively.
	KindUnknownAction Kind = "unknown_action"
	// KindEmptyCompletion marks a completion provider response with no
	// content.
	KindEmptyCompletion Kind = "empty_completion"
	// KindMissingSession marks a successful initialize exchange that yielded
	// no discoverable session token.
	KindMissingSession Kind = "missing_session"
)

// Error is a classified error. It wraps an optional cause and participates in
// the standard errors.Is/As chains.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// WithKind creates a new classified error.
func WithKind(kind Kind, format string, a ...interface{}) error {
	return &Error{
		Kind: kind,
		msg:  fmt.Sprintf("[%s] %s", caller(), fmt.Sprintf(format, a...)),
	}
}

// WrapKind classifies an existing error and adds context. A nil error yields
// nil.
func WrapKind(err error, kind Kind, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind: kind,
		msg:  fmt.Sprintf("[%s] %s", caller(), fmt.Sprintf(format, a...)),
		err:  err,
	}
}

// KindOf walks the wrap chain and returns the first classification found, or
// KindUnknown if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Unwrap()
	}
	return false
}

// Is delegates to the standard library so callers don't need a second import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As delegates to the standard library so callers don't need a second import.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
