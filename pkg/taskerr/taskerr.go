// Package taskerr defines the error kinds named in the engine's error
// handling design: MissingContext and UnresolvedInput are programming
// errors that the caller violated a precondition on; UnknownTrait,
// UnknownMethod and TypeMismatch are dispatch-time failures; TaskFailure is
// the sticky error a task body returns, which is stored in the task's
// output slot and re-raised to every subsequent reader.
package taskerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on it with errors.Is
// instead of matching strings.
type Kind int

const (
	MissingContext Kind = iota
	UnknownTrait
	UnknownMethod
	TypeMismatch
	UnresolvedInput
	TaskFailure
)

func (k Kind) String() string {
	switch k {
	case MissingContext:
		return "missing_context"
	case UnknownTrait:
		return "unknown_trait"
	case UnknownMethod:
		return "unknown_method"
	case TypeMismatch:
		return "type_mismatch"
	case UnresolvedInput:
		return "unresolved_input"
	case TaskFailure:
		return "task_failure"
	default:
		return "unknown"
	}
}

// Error is the concrete error type for every kind this package defines.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a taskerr.Error of the same Kind, so
// errors.Is(err, taskerr.ErrMissingContext) works regardless of message or
// wrapped cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinels for errors.Is comparisons; these carry no message of their own.
var (
	ErrMissingContext  = &Error{Kind: MissingContext}
	ErrUnknownTrait    = &Error{Kind: UnknownTrait}
	ErrUnknownMethod   = &Error{Kind: UnknownMethod}
	ErrTypeMismatch    = &Error{Kind: TypeMismatch}
	ErrUnresolvedInput = &Error{Kind: UnresolvedInput}
	ErrTaskFailure     = &Error{Kind: TaskFailure}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NewMissingContext(op string) *Error {
	return New(MissingContext, fmt.Sprintf("%s called outside of a task execution", op))
}

func NewUnresolvedInput(fn string) *Error {
	return New(UnresolvedInput, fmt.Sprintf("native_call to %q received an unresolved input", fn))
}

func NewUnknownTrait(name string) *Error {
	return New(UnknownTrait, fmt.Sprintf("trait %q is not registered", name))
}

func NewUnknownMethod(trait, method string) *Error {
	return New(UnknownMethod, fmt.Sprintf("trait %q has no implementation of method %q for this value", trait, method))
}

func NewTypeMismatch(want, got string) *Error {
	return New(TypeMismatch, fmt.Sprintf("expected value of type %s, found %s", want, got))
}

func NewTaskFailure(err error) *Error {
	return Wrap(TaskFailure, "task body returned an error", err)
}
