package mosaic

import (
	"errors"
	"fmt"
)

// FetchError is returned when a resource could not be retrieved: the fetcher
// reported a non-success status, or the underlying transport failed. It
// always carries the path that was being fetched, and the status when one is
// known.
type FetchError struct {
	// Path is the resource path that was being fetched.
	Path string

	// Status is the status code the fetcher reported, or 0 when the
	// failure happened before a status was available.
	Status int

	// Err is the underlying error, if any.
	Err error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("fetching %q: status %d", e.Path, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TargetNotFoundError is returned when the addressable target for an
// operation doesn't exist in the Document.
type TargetNotFoundError struct {
	// Ref is the target reference that couldn't be resolved.
	Ref string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target %q not found", e.Ref)
}

// ExpressionError indicates a template conditional or loop expression that
// couldn't be compiled or evaluated. It is never fatal; the Engine treats the
// expression as falsy (conditionals) or empty (loops) and logs it.
type ExpressionError struct {
	// Expr is the expression text that failed.
	Expr string

	// Err is the underlying compile or evaluation error.
	Err error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("evaluating %q: %v", e.Expr, e.Err)
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}

// HandlerNotFoundError indicates a named event handler that was missing from
// the Handlers registry at dispatch time. It is logged, not thrown; Dispatch
// returns it so callers can suppress the event's default behavior.
type HandlerNotFoundError struct {
	// Name is the handler name that was looked up.
	Name string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("handler %q not registered", e.Name)
}

// ScriptExecutionError indicates that an embedded script threw during
// execution. It is caught and logged; it never aborts the surrounding load.
type ScriptExecutionError struct {
	// Path is the resource path whose markup contained the script.
	Path string

	// Err is the error the ScriptRunner reported.
	Err error
}

func (e *ScriptExecutionError) Error() string {
	return fmt.Sprintf("script in %q: %v", e.Path, e.Err)
}

func (e *ScriptExecutionError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is, or wraps, a *FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// IsTargetNotFound reports whether err is, or wraps, a *TargetNotFoundError.
func IsTargetNotFound(err error) bool {
	var targetErr *TargetNotFoundError
	return errors.As(err, &targetErr)
}
