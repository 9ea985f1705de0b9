package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts the renders of one component within a single drain
// of the event queue and enforces a maximum.
//
// A render function that writes to state its own selector depends on
// re-schedules itself on every pass; the quota turns that loop into an
// error instead of a hang.
type QuotaEnforcer struct {
	maxRenders int
	current    int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
func NewQuotaEnforcer(maxRenders int) *QuotaEnforcer {
	return &QuotaEnforcer{maxRenders: maxRenders}
}

// Check increments the render counter and validates it against the limit.
// Returns RenderLoopError if the quota is exceeded.
func (q *QuotaEnforcer) Check(component string) error {
	q.current++
	if q.current > q.maxRenders {
		return &RenderLoopError{
			Component: component,
			Renders:   q.current,
			Limit:     q.maxRenders,
		}
	}
	return nil
}

// Reset sets the render counter back to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current render count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxRenders returns the limit.
func (q *QuotaEnforcer) MaxRenders() int {
	return q.maxRenders
}

// RenderLoopError is returned when a component renders more often than the
// quota allows within one drain of the queue.
type RenderLoopError struct {
	Component string
	Renders   int
	Limit     int
}

// Error implements the error interface.
func (e *RenderLoopError) Error() string {
	return fmt.Sprintf("component %s exceeded render quota: %d renders > %d limit",
		e.Component, e.Renders, e.Limit)
}

// RuntimeError returns the error type for matching.
func (e *RenderLoopError) RuntimeError() string {
	return "RenderLoopError"
}

// IsRenderLoopError returns true if the error is a RenderLoopError.
// Uses errors.As to handle wrapped errors.
func IsRenderLoopError(err error) bool {
	var rl *RenderLoopError
	return errors.As(err, &rl)
}
