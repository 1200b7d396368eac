package interp

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgslinterp/wgsl"
)

// ErrOutOfBounds is returned by raw Memory accesses and by root view
// creation when the requested range does not fit the allocation.
var ErrOutOfBounds = errors.New("interp: access out of bounds")

// ErrorKind categorizes executor setup and fatal runtime errors.
type ErrorKind uint8

const (
	// ErrEntryPointNotFound indicates the requested entry point doesn't exist.
	ErrEntryPointNotFound ErrorKind = iota

	// ErrNotAComputeEntryPoint indicates the entry point is not @compute.
	ErrNotAComputeEntryPoint

	// ErrMissingOverrideValue indicates an override without an initializer
	// was not given a value.
	ErrMissingOverrideValue

	// ErrInvalidOverride indicates an override value or initializer could
	// not be evaluated.
	ErrInvalidOverride

	// ErrInvalidWorkgroupSize indicates a workgroup size dimension is zero or
	// exceeds the device limits.
	ErrInvalidWorkgroupSize

	// ErrMissingBufferBinding indicates a referenced buffer has no binding.
	ErrMissingBufferBinding

	// ErrInvalidBindingResource indicates a binding that cannot back the
	// variable it is bound to.
	ErrInvalidBindingResource

	// ErrAlreadyRun indicates Run was called more than once.
	ErrAlreadyRun

	// ErrFatal indicates a runtime condition the interpreter cannot
	// continue from.
	ErrFatal
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrEntryPointNotFound:
		return "EntryPointNotFound"
	case ErrNotAComputeEntryPoint:
		return "NotAComputeEntryPoint"
	case ErrMissingOverrideValue:
		return "MissingOverrideValue"
	case ErrInvalidOverride:
		return "InvalidOverride"
	case ErrInvalidWorkgroupSize:
		return "InvalidWorkgroupSize"
	case ErrMissingBufferBinding:
		return "MissingBufferBinding"
	case ErrInvalidBindingResource:
		return "InvalidBindingResource"
	case ErrAlreadyRun:
		return "AlreadyRun"
	case ErrFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is returned by Create and Run.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Message provides details about the error.
	Message string

	// Span optionally identifies the source location.
	Span *wgsl.Span
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Span != nil {
		return fmt.Sprintf("%s:%d:%d: %s", e.Span.Source, e.Span.Start.Line, e.Span.Start.Column, e.Message)
	}
	return e.Message
}

// newError creates an error without span information.
func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// newErrorAt creates an error located at span.
func newErrorAt(kind ErrorKind, span wgsl.Span, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Span: &span}
}

// IsEntryPointNotFound returns true if the error is ErrEntryPointNotFound.
func (e *Error) IsEntryPointNotFound() bool {
	return e.Kind == ErrEntryPointNotFound
}

// IsMissingBufferBinding returns true if the error is ErrMissingBufferBinding.
func (e *Error) IsMissingBufferBinding() bool {
	return e.Kind == ErrMissingBufferBinding
}

// IsFatal returns true if the error is ErrFatal.
func (e *Error) IsFatal() bool {
	return e.Kind == ErrFatal
}

// KindOf returns the kind of an *Error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
