package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/statebox/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describeEvent(event))
		}
	}

	return buf.String()
}

func (h *Harness) evaluateAssertion(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(h.result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(h.result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(h.result.Trace, a)
	case AssertFinalState:
		return assertFinalState(h.container, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks if the trace contains an event matching the
// assertion's event type, key, observer and value.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchEvent(event, EventMatch{Event: a.Event, Key: a.Key, Observer: a.Observer}) &&
			(a.Value == nil || valuesEqual(a.Value, event.Value)) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeMatch(EventMatch{Event: a.Event, Key: a.Key, Observer: a.Observer}, a.Value),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that each matcher is satisfied by an event after
// the one satisfying the previous matcher. Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, m := range a.Events {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if matchEvent(event, m) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %s", describeMatches(a.Events)),
				Actual:   fmt.Sprintf("no %s after the previous match", describeMatch(m, nil)),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if matching events appear exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	m := EventMatch{Event: a.Event, Key: a.Key, Observer: a.Observer}
	count := 0
	for _, event := range trace {
		if matchEvent(event, m) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeMatch(m, nil)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the visible state with subset semantics.
func assertFinalState(st ir.State, a Assertion) error {
	if msg := matchState(st, a.Expect); msg != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state containing %v", a.Expect),
			Actual:   msg,
		}
	}
	return nil
}

// matchState returns a description of the first mismatch, or "".
// Hidden properties are readable through Get, so they can be asserted.
func matchState(st ir.State, expect map[string]any) string {
	for _, key := range sortedKeys(expect) {
		got, ok := st.Get(key)
		if !ok {
			return fmt.Sprintf("key %q not present", key)
		}
		if !valuesEqual(expect[key], got) {
			return fmt.Sprintf("key %q = %v (type %T), expected %v (type %T)", key, got, got, expect[key], expect[key])
		}
	}
	return ""
}

// matchEvent checks type and, when set, key and observer. The observer
// field also matches a render event's component.
func matchEvent(event TraceEvent, m EventMatch) bool {
	if event.Type != m.Event {
		return false
	}
	if m.Key != "" && event.Key != m.Key {
		return false
	}
	if m.Observer != "" && event.Observer != m.Observer && event.Component != m.Observer {
		return false
	}
	return true
}

// valuesEqual compares by canonical encoding, so an expected YAML int
// matches an int64 from CEL or CUE and map key order never matters.
func valuesEqual(expected, actual any) bool {
	a, errA := ir.MarshalCanonical(expected)
	b, errB := ir.MarshalCanonical(actual)
	if errA != nil || errB != nil {
		return ir.Equal(expected, actual)
	}
	return bytes.Equal(a, b)
}

func describeEvent(e TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d %s", e.Seq, e.Type)
	if e.Op != "" {
		fmt.Fprintf(&b, " %s", e.Op)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%s", e.Key)
	}
	if e.Observer != "" {
		fmt.Fprintf(&b, " observer=%s", e.Observer)
	}
	if e.Component != "" {
		fmt.Fprintf(&b, " component=%s pass=%d", e.Component, e.Pass)
	}
	if e.Value != nil {
		fmt.Fprintf(&b, " value=%v", e.Value)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	return b.String()
}

func describeMatch(m EventMatch, value any) string {
	s := m.Event
	if m.Key != "" {
		s += " key=" + m.Key
	}
	if m.Observer != "" {
		s += " observer=" + m.Observer
	}
	if value != nil {
		s += fmt.Sprintf(" value=%v", value)
	}
	return s
}

func describeMatches(ms []EventMatch) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = describeMatch(m, nil)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
