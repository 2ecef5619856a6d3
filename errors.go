package toolgram

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for toolgram. Use errors.Is to check.
var (
	ErrRegistration = errors.New("tool registration failed")
	ErrParse        = errors.New("parse error")
	ErrToolNotFound = errors.New("tool not found")
	ErrArity        = errors.New("argument count mismatch")
	ErrCoercion     = errors.New("type coercion failed")
	ErrValidation   = errors.New("validation failed")
	ErrExecution    = errors.New("tool execution failed")
	ErrTimeout      = errors.New("generation timeout")
)

// RegistrationError rejects a tool descriptor. It is meant to stop startup.
type RegistrationError struct {
	Tool   string
	Param  string
	Reason string
}

func (e *RegistrationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("register %s: parameter %q: %s", e.Tool, e.Param, e.Reason)
	}
	return fmt.Sprintf("register %s: %s", e.Tool, e.Reason)
}

func (e *RegistrationError) Unwrap() error { return ErrRegistration }

// ParseError reports model output that is not a single literal-only call.
// Pos is the byte offset into the trimmed input.
type ParseError struct {
	Pos    int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Pos, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// UnknownToolError is returned when a call names a tool that is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

func (e *UnknownToolError) Unwrap() error { return ErrToolNotFound }

// ArityError reports a positional argument count the tool does not accept.
// Min equals Max unless trailing parameters have defaults.
type ArityError struct {
	Tool string
	Min  int
	Max  int
	Got  int
}

func (e *ArityError) Error() string {
	if e.Min == e.Max {
		return fmt.Sprintf("%s: expected %d arguments, got %d", e.Tool, e.Max, e.Got)
	}
	return fmt.Sprintf("%s: expected %d to %d arguments, got %d", e.Tool, e.Min, e.Max, e.Got)
}

func (e *ArityError) Unwrap() error { return ErrArity }

// TypeCoercionError names the parameter (and struct field, if any) whose literal could not be
// converted to the declared type.
type TypeCoercionError struct {
	Tool   string
	Param  string
	Field  string
	Reason string
	Err    error
}

func (e *TypeCoercionError) Error() string {
	target := e.Param
	switch {
	case e.Field == "":
	case e.Field[0] == '[':
		target += e.Field
	default:
		target += "." + e.Field
	}
	return fmt.Sprintf("%s: type error for %s: %s", e.Tool, target, e.Reason)
}

// Is matches ErrCoercion; Unwrap exposes the underlying cause (e.g. ErrValidation from a Validatable).
func (e *TypeCoercionError) Is(target error) bool { return target == ErrCoercion }

func (e *TypeCoercionError) Unwrap() error { return e.Err }

// ExecutionError wraps an error returned (or a panic raised) by a tool handler.
// Error() is the handler's own message.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

func (e *ExecutionError) Unwrap() error { return e.Err }

// TimeoutError is returned when guarded work exceeds its deadline. Retrying with a larger
// budget is reasonable.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation exceeded %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// IsClientError reports whether err was caused by the model's output (parse, unknown tool,
// arity, coercion) and could be fixed by the model on a retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrParse) ||
		errors.Is(err, ErrToolNotFound) ||
		errors.Is(err, ErrArity) ||
		errors.Is(err, ErrCoercion)
}

// IsSystemError reports whether err happened on the host side (handler failure or timeout).
func IsSystemError(err error) bool {
	return errors.Is(err, ErrExecution) || errors.Is(err, ErrTimeout)
}

// panicError wraps a recovered panic value for ExecutionError.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
