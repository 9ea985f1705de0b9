package harness

import (
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/statebox/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	State        map[string]any `json:"state"`
	Trace        []TraceEvent   `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// Empty fields are omitted, except value on events that always carry one.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
		}
		if event.Op != "" {
			eventMap["op"] = event.Op
		}
		if event.Key != "" {
			eventMap["key"] = event.Key
		}
		if carriesValue(event) {
			eventMap["value"] = event.Value
		}
		if event.Missing {
			eventMap["missing"] = true
		}
		if event.Channel != "" {
			eventMap["channel"] = event.Channel
		}
		if event.Observer != "" {
			eventMap["observer"] = event.Observer
		}
		if event.Component != "" {
			eventMap["component"] = event.Component
			eventMap["pass"] = event.Pass
		}
		if event.Code != "" {
			eventMap["code"] = event.Code
		}
		if event.Step != 0 {
			eventMap["step"] = event.Step
		}
		traceList[i] = eventMap
	}

	state := s.State
	if state == nil {
		state = map[string]any{}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"state":         state,
		"trace":         traceList,
	}
}

func carriesValue(e TraceEvent) bool {
	switch e.Type {
	case EventRender, EventDefine:
		return true
	case EventChange:
		return e.Op == string(ir.OpWrite)
	case EventRead:
		return !e.Missing
	}
	return false
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := GoldenBytes(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}

// GoldenBytes renders a result in the canonical golden form.
func GoldenBytes(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		State:        result.State,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// sortedKeys returns the keys of m in canonical order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, ir.CompareKeys)
	return keys
}
