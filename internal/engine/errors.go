package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while driving components.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Component identifies the affected component, if any.
	Component string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDuplicateComponent indicates Mount was called twice for a name.
	ErrCodeDuplicateComponent RuntimeErrorCode = "DUPLICATE_COMPONENT"

	// ErrCodeUnknownComponent indicates a name that is not mounted.
	ErrCodeUnknownComponent RuntimeErrorCode = "UNKNOWN_COMPONENT"

	// ErrCodeRenderFailed indicates a render function returned an error.
	ErrCodeRenderFailed RuntimeErrorCode = "RENDER_FAILED"

	// ErrCodeDispatchFailed indicates a dispatched mutation returned an error.
	ErrCodeDispatchFailed RuntimeErrorCode = "DISPATCH_FAILED"

	// ErrCodeStopped indicates the engine no longer accepts events.
	ErrCodeStopped RuntimeErrorCode = "STOPPED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		msg = fmt.Sprintf("%s (component=%s)", msg, e.Component)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsRenderError returns true if a render function failed.
func IsRenderError(err error) bool {
	return hasCode(err, ErrCodeRenderFailed)
}

// IsUnknownComponentError returns true if the error names an unmounted
// component.
func IsUnknownComponentError(err error) bool {
	return hasCode(err, ErrCodeUnknownComponent)
}

// IsStoppedError returns true if the engine was stopped.
func IsStoppedError(err error) bool {
	return hasCode(err, ErrCodeStopped)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newRenderError(component string, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeRenderFailed,
		Message:   "render function failed",
		Component: component,
		Err:       err,
	}
}

func newDispatchError(err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDispatchFailed,
		Message: "dispatched mutation failed",
		Err:     err,
	}
}

func newUnknownComponentError(component string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeUnknownComponent,
		Message:   "component is not mounted",
		Component: component,
	}
}

func newStoppedError() *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStopped,
		Message: "engine stopped",
	}
}
