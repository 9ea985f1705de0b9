package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/statebox/internal/selector"
)

// Topology names.
const (
	TopologyPrivate = "private"
	TopologyBus     = "bus"
)

// Scenario defines a conformance test scenario.
// A scenario builds one container, binds observers to it, executes a list of
// steps and asserts on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Topology selects private listener sets or a shared bus.
	// Defaults to private.
	Topology string `yaml:"topology,omitempty"`

	// State is the initial target.
	State map[string]any `yaml:"state,omitempty"`

	// StateFile is a CUE file declaring the initial state with property
	// attributes. Resolved relative to the scenario file.
	StateFile string `yaml:"state_file,omitempty"`

	// MaxRenders overrides the per-component render quota.
	MaxRenders int `yaml:"max_renders,omitempty"`

	// Observers are bound in order before the first step runs.
	Observers []ObserverSpec `yaml:"observers"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ObserverSpec declares one observer and the selector it subscribes with.
type ObserverSpec struct {
	Name   string `yaml:"name"`
	Select string `yaml:"select"`

	// Lang is the selector language (expr, cel, js). Defaults to expr.
	Lang string `yaml:"lang,omitempty"`

	// Effect makes the observer's component write during each render.
	Effect *EffectSpec `yaml:"effect,omitempty"`
}

// EffectSpec is a write performed by a component while it renders.
// Select is evaluated against the render snapshot in the observer's
// language; a null result skips the write.
type EffectSpec struct {
	Key    string `yaml:"key"`
	Select string `yaml:"select"`
}

// Step is a single scenario step. Exactly one action field is set.
type Step struct {
	Write  *WriteStep  `yaml:"write,omitempty"`
	Delete *DeleteStep `yaml:"delete,omitempty"`
	Define *DefineStep `yaml:"define,omitempty"`
	Read   *ReadStep   `yaml:"read,omitempty"`
	Expect *ExpectStep `yaml:"expect,omitempty"`

	// Enter and Commit name an observer whose render phase is opened or
	// closed explicitly.
	Enter  string `yaml:"enter,omitempty"`
	Commit string `yaml:"commit,omitempty"`

	// Unbind closes the named observer and unmounts its component.
	Unbind string `yaml:"unbind,omitempty"`

	// Flush drains the render runtime.
	Flush bool `yaml:"flush,omitempty"`

	// Error is the error code the step is expected to fail with.
	Error string `yaml:"error,omitempty"`
}

// WriteStep assigns a value.
type WriteStep struct {
	Key   string `yaml:"key"`
	Value any    `yaml:"value"`
}

// DeleteStep removes a property.
type DeleteStep struct {
	Key string `yaml:"key"`
}

// DefineStep defines a property with attributes.
type DefineStep struct {
	Key      string `yaml:"key"`
	Value    any    `yaml:"value"`
	ReadOnly bool   `yaml:"readonly,omitempty"`
	Hidden   bool   `yaml:"hidden,omitempty"`
	Locked   bool   `yaml:"locked,omitempty"`
}

// ReadStep reads a key, through an observer when Observer is set.
type ReadStep struct {
	Key      string `yaml:"key"`
	Observer string `yaml:"observer,omitempty"`

	// Expect is compared against the value read when set.
	Expect any `yaml:"expect,omitempty"`

	// Missing asserts that the key is absent.
	Missing bool `yaml:"missing,omitempty"`
}

// ExpectStep checks observer or container state at a point in the run.
type ExpectStep struct {
	Observer string `yaml:"observer,omitempty"`

	// Value is the observer's expected current selected value.
	Value any `yaml:"value,omitempty"`

	// Signals is the observer's expected signal count.
	Signals *int `yaml:"signals,omitempty"`

	// Renders is the expected number of completed render passes.
	Renders *int64 `yaml:"renders,omitempty"`

	// State is a subset match against the container's visible state.
	State map[string]any `yaml:"state,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Event type matching Key/Observer/Value
	// - "trace_order": events appear in the given order
	// - "trace_count": matching events appear exactly Count times
	// - "final_state": the final visible state contains Expect
	Type string `yaml:"type"`

	// Event is the trace event type to match.
	Event string `yaml:"event,omitempty"`

	// Key, Observer and Value narrow the match when set.
	Key      string `yaml:"key,omitempty"`
	Observer string `yaml:"observer,omitempty"`
	Value    any    `yaml:"value,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (used by trace_order).
	Events []EventMatch `yaml:"events,omitempty"`

	// Expect contains expected state values (used by final_state).
	// Subset match - only specified keys are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// EventMatch selects trace events by type and, optionally, key or observer.
type EventMatch struct {
	Event    string `yaml:"event"`
	Key      string `yaml:"key,omitempty"`
	Observer string `yaml:"observer,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative state_file is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.StateFile != "" && !filepath.IsAbs(scenario.StateFile) {
		scenario.StateFile = filepath.Join(filepath.Dir(path), scenario.StateFile)
	}
	if scenario.StateFile != "" {
		if _, err := os.Stat(scenario.StateFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: state file not found: %s", scenario.StateFile)
		}
	}

	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch s.Topology {
	case "", TopologyPrivate, TopologyBus:
	default:
		return fmt.Errorf("unknown topology %q", s.Topology)
	}

	if s.State != nil && s.StateFile != "" {
		return fmt.Errorf("state and state_file are mutually exclusive")
	}

	if s.MaxRenders < 0 {
		return fmt.Errorf("max_renders must be non-negative")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Observers))
	for i, o := range s.Observers {
		if o.Name == "" {
			return fmt.Errorf("observers[%d]: name is required", i)
		}
		if names[o.Name] {
			return fmt.Errorf("observers[%d]: duplicate observer %q", i, o.Name)
		}
		names[o.Name] = true
		if o.Select == "" {
			return fmt.Errorf("observers[%d]: select is required", i)
		}
		if o.Lang != "" {
			if _, err := selector.ParseLang(o.Lang); err != nil {
				return fmt.Errorf("observers[%d]: %w", i, err)
			}
		}
		if o.Effect != nil && (o.Effect.Key == "" || o.Effect.Select == "") {
			return fmt.Errorf("observers[%d].effect: key and select are required", i)
		}
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i], names); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one action is set and that every
// observer it references is declared.
func validateStep(index int, st *Step, observers map[string]bool) error {
	actions := 0
	var refs []string

	if st.Write != nil {
		actions++
		if st.Write.Key == "" {
			return fmt.Errorf("steps[%d].write: key is required", index)
		}
	}
	if st.Delete != nil {
		actions++
		if st.Delete.Key == "" {
			return fmt.Errorf("steps[%d].delete: key is required", index)
		}
	}
	if st.Define != nil {
		actions++
		if st.Define.Key == "" {
			return fmt.Errorf("steps[%d].define: key is required", index)
		}
	}
	if st.Read != nil {
		actions++
		if st.Read.Key == "" {
			return fmt.Errorf("steps[%d].read: key is required", index)
		}
		if st.Read.Missing && st.Read.Expect != nil {
			return fmt.Errorf("steps[%d].read: expect and missing are mutually exclusive", index)
		}
		if st.Read.Observer != "" {
			refs = append(refs, st.Read.Observer)
		}
	}
	if st.Expect != nil {
		actions++
		e := st.Expect
		if e.Observer == "" && (e.Value != nil || e.Signals != nil || e.Renders != nil) {
			return fmt.Errorf("steps[%d].expect: observer is required for value, signals and renders", index)
		}
		if e.Observer != "" {
			refs = append(refs, e.Observer)
		}
	}
	for _, name := range []string{st.Enter, st.Commit, st.Unbind} {
		if name != "" {
			actions++
			refs = append(refs, name)
		}
	}
	if st.Flush {
		actions++
	}

	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, actions)
	}
	for _, name := range refs {
		if !observers[name] {
			return fmt.Errorf("steps[%d]: unknown observer %q", index, name)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
		for j, m := range a.Events {
			if m.Event == "" {
				return fmt.Errorf("assertions[%d].events[%d]: event is required", index, j)
			}
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
