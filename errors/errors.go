package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates which lifecycle operation produced the error
type Phase string

const (
	PhaseRegister  Phase = "register"  // scope registration
	PhaseConstruct Phase = "construct" // constructor callback
	PhaseRead      Phase = "read"      // value access
	PhaseRelease   Phase = "release"   // release callback
	PhaseTransfer  Phase = "transfer"  // ownership handoff
	PhaseRemove    Phase = "remove"    // detaching from a scope
	PhaseTeardown  Phase = "teardown"  // scope close
	PhaseOutcome   Phase = "outcome"   // transfer outcome cell
)

// Kind categorizes the error
type Kind string

const (
	KindIllegalState    Kind = "illegal_state"
	KindIllegalArgument Kind = "illegal_argument"
	KindConstruction    Kind = "construction"
	KindRelease         Kind = "release"
	KindNoValue         Kind = "no_value"
	KindPanic           Kind = "panic"
	KindTeardown        Kind = "teardown"
)

// Sentinels for errors.Is. An empty Phase matches every phase.
var (
	ErrIllegalState    = &Error{Kind: KindIllegalState}
	ErrIllegalArgument = &Error{Kind: KindIllegalArgument}
	ErrNoValue         = &Error{Kind: KindNoValue}
	ErrTeardown        = &Error{Kind: KindTeardown}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Resource   string
	Detail     string
	Suppressed []error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Resource != "" {
		b.WriteString(" at ")
		b.WriteString(e.Resource)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	if n := len(e.Suppressed); n > 0 {
		b.WriteString(" (+")
		b.WriteString(strconv.Itoa(n))
		b.WriteString(" suppressed)")
	}

	return b.String()
}

// Unwrap returns the underlying error. Suppressed errors are not part of the
// chain; the cause is the primary failure.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Empty Phase or Kind on the target act as wildcards.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return true
}

// All returns the primary cause followed by the suppressed errors.
func (e *Error) All() []error {
	all := make([]error, 0, 1+len(e.Suppressed))
	if e.Cause != nil {
		all = append(all, e.Cause)
	}
	return append(all, e.Suppressed...)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Resource sets the name of the resource involved
func (b *Builder) Resource(name string) *Builder {
	b.err.Resource = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Suppress attaches secondary errors
func (b *Builder) Suppress(errs ...error) *Builder {
	b.err.Suppressed = append(b.err.Suppressed, errs...)
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// IllegalState creates a protocol-misuse error for an operation attempted in
// the wrong lifecycle state
func IllegalState(phase Phase, resource, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindIllegalState,
		Resource: resource,
		Detail:   detail,
	}
}

// IllegalArgument creates a protocol-misuse error for a bad argument
func IllegalArgument(phase Phase, resource, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindIllegalArgument,
		Resource: resource,
		Detail:   detail,
	}
}

// Construction wraps an error returned by a constructor callback
func Construction(resource string, cause error) *Error {
	return &Error{
		Phase:    PhaseConstruct,
		Kind:     KindConstruction,
		Resource: resource,
		Detail:   "construct resource",
		Cause:    cause,
	}
}

// Release wraps an error returned by a release callback
func Release(resource string, cause error) *Error {
	return &Error{
		Phase:    PhaseRelease,
		Kind:     KindRelease,
		Resource: resource,
		Detail:   "release resource",
		Cause:    cause,
	}
}

// NoValue creates the default failure reported when a transfer source holds
// no live value
func NoValue(resource, reason string) *Error {
	return &Error{
		Phase:    PhaseTransfer,
		Kind:     KindNoValue,
		Resource: resource,
		Detail:   reason,
	}
}

// Panic converts a recovered panic into an error
func Panic(phase Phase, resource string, recovered any) *Error {
	if err, ok := recovered.(error); ok {
		return &Error{
			Phase:    phase,
			Kind:     KindPanic,
			Resource: resource,
			Detail:   "panic",
			Cause:    err,
			Value:    recovered,
		}
	}
	return &Error{
		Phase:    phase,
		Kind:     KindPanic,
		Resource: resource,
		Detail:   fmt.Sprintf("panic: %v", recovered),
		Value:    recovered,
	}
}

// Teardown aggregates release failures collected while closing a scope.
// The first error is the primary cause; the rest are suppressed.
// Returns nil when errs is empty.
func Teardown(scope string, errs []error) *Error {
	if len(errs) == 0 {
		return nil
	}
	return &Error{
		Phase:      PhaseTeardown,
		Kind:       KindTeardown,
		Resource:   scope,
		Detail:     fmt.Sprintf("%d release(s) failed", len(errs)),
		Cause:      errs[0],
		Suppressed: append([]error(nil), errs[1:]...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsIllegalState reports whether err is a protocol-misuse state error
func IsIllegalState(err error) bool {
	return stderrors.Is(err, ErrIllegalState)
}

// IsIllegalArgument reports whether err is a protocol-misuse argument error
func IsIllegalArgument(err error) bool {
	return stderrors.Is(err, ErrIllegalArgument)
}
