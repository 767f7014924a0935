// Package xerr defines the error taxonomy shared by every component:
// input, transient, degraded-processing, fatal-session, and system errors,
// per the error handling design. All wrap github.com/mdobak/go-xerrors so
// that the first detection site keeps a stack trace even after the error
// has been converted to a sentinel-comparable type further up the stack.
package xerr

import (
	"fmt"

	"github.com/mdobak/go-xerrors"
)

// Kind classifies an error along the taxonomy the control plane and
// sessions use to decide whether to retry, degrade, or cancel.
type Kind int

const (
	// KindInput covers unsupported formats, corrupt containers, and
	// invalid configuration. Surfaced to the caller; other sessions are
	// unaffected.
	KindInput Kind = iota
	// KindTransient covers PCM read failures and cache I/O hiccups.
	// Retried once by the caller; surfaced on the session if the retry
	// also fails.
	KindTransient
	// KindDegraded covers fingerprint failures and non-finite DSP output.
	// Recovered locally with a safe default; the stream continues with a
	// warning flag set.
	KindDegraded
	// KindFatal covers unrecoverable PCM failure and session OOM. The
	// session moves to Cancelled and the error surfaces on the next pull.
	KindFatal
	// KindSystem covers cache corruption detected on read. Logged and
	// treated as a miss; never propagated as a crash.
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTransient:
		return "transient"
	case KindDegraded:
		return "degraded"
	case KindFatal:
		return "fatal"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Error is the taxonomy-aware error type every package in this module
// returns for fallible operations.
type Error struct {
	kind    Kind
	op      string
	cause   error
	wrapped error
}

// New creates a taxonomy error for op, wrapping cause with a captured
// stack trace.
func New(kind Kind, op string, cause error) *Error {
	return &Error{
		kind:    kind,
		op:      op,
		cause:   cause,
		wrapped: xerrors.WithStackTrace(cause),
	}
}

// Newf is like New but builds cause from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.op == "" {
		return fmt.Sprintf("[%s] %v", e.kind, e.cause)
	}
	return fmt.Sprintf("[%s] %s: %v", e.kind, e.op, e.cause)
}

// Kind reports which taxonomy bucket this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the underlying stack-traced error to errors.Is/As.
func (e *Error) Unwrap() error { return e.wrapped }

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, xerr.Degraded) style checks against sentinels
// built with the marker constructors below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.cause == nil {
		return e.kind == t.kind
	}
	return e.kind == t.kind && e.cause.Error() == t.cause.Error()
}

// Marker sentinels usable with errors.Is for coarse-grained kind checks.
var (
	Input     = &Error{kind: KindInput}
	Transient = &Error{kind: KindTransient}
	Degraded  = &Error{kind: KindDegraded}
	Fatal     = &Error{kind: KindFatal}
	System    = &Error{kind: KindSystem}
)
