package container

import (
	"errors"
	"fmt"
)

// Error is the failure type returned by container, registry and observer
// operations. All of them are caller-correctable programming errors: they
// are raised before any mutation, never retried and never swallowed.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Key is the property involved, when there is one.
	Key string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes container errors.
type ErrorCode string

const (
	// ErrCodeInvalidTarget indicates construction on a value that is not a
	// string-keyed mapping.
	ErrCodeInvalidTarget ErrorCode = "INVALID_TARGET"

	// ErrCodeReservedKey indicates external access to the reserved key.
	ErrCodeReservedKey ErrorCode = "RESERVED_KEY"

	// ErrCodeUnmanagedContainer indicates a value the registry does not
	// recognize as one of its Containers.
	ErrCodeUnmanagedContainer ErrorCode = "UNMANAGED_CONTAINER"

	// ErrCodeReadOnly indicates a write to a read-only property.
	ErrCodeReadOnly ErrorCode = "READ_ONLY"

	// ErrCodeLocked indicates a redefinition or deletion of a locked property.
	ErrCodeLocked ErrorCode = "LOCKED"
)

// Sentinels for errors.Is. Any *Error matches the sentinel with the same Code.
var (
	ErrInvalidTarget        = &Error{Code: ErrCodeInvalidTarget, Message: "target must be a string-keyed map"}
	ErrReservedKeyViolation = &Error{Code: ErrCodeReservedKey, Message: "reserved key is not accessible"}
	ErrUnmanagedContainer   = &Error{Code: ErrCodeUnmanagedContainer, Message: "value is not a managed container"}
	ErrReadOnly             = &Error{Code: ErrCodeReadOnly, Message: "property is read-only"}
	ErrLocked               = &Error{Code: ErrCodeLocked, Message: "property is locked"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key=%q)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsReservedKeyError returns true if err is a reserved-key violation.
func IsReservedKeyError(err error) bool {
	return CodeOf(err) == ErrCodeReservedKey
}

// IsInvalidTargetError returns true if err is an invalid-target error.
func IsInvalidTargetError(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTarget
}

// IsUnmanagedError returns true if err is an unmanaged-container error.
func IsUnmanagedError(err error) bool {
	return CodeOf(err) == ErrCodeUnmanagedContainer
}

// NewInvalidTargetError creates an Error for a non-mapping target.
func NewInvalidTargetError(target any) *Error {
	return &Error{
		Code:    ErrCodeInvalidTarget,
		Message: fmt.Sprintf("target must be a string-keyed map, got %T", target),
	}
}

// NewUnmanagedError creates an Error for a value the registry does not know.
func NewUnmanagedError(v any) *Error {
	return &Error{
		Code:    ErrCodeUnmanagedContainer,
		Message: fmt.Sprintf("%T is not a container managed by this registry", v),
	}
}

func newReservedKeyError(op string) *Error {
	return &Error{
		Code:    ErrCodeReservedKey,
		Key:     ReservedKey,
		Message: op + " of reserved key is not permitted",
	}
}

func newReadOnlyError(key string) *Error {
	return &Error{Code: ErrCodeReadOnly, Key: key, Message: "cannot write read-only property"}
}

func newLockedError(key, op string) *Error {
	return &Error{Code: ErrCodeLocked, Key: key, Message: "cannot " + op + " locked property"}
}
