package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statebox/internal/container"
	"github.com/roach88/statebox/internal/engine"
	"github.com/roach88/statebox/internal/ir"
	"github.com/roach88/statebox/internal/store"
)

func intPtr(n int) *int       { return &n }
func int64Ptr(n int64) *int64 { return &n }

func counterScenario() *Scenario {
	return &Scenario{
		Name:        "counter",
		Description: "Minimal counter",
		State:       map[string]any{"count": 0},
		Observers:   []ObserverSpec{{Name: "counter", Select: "count"}},
		Steps: []Step{
			{Write: &WriteStep{Key: "count", Value: 1}},
			{Flush: true},
			{Expect: &ExpectStep{Observer: "counter", Value: 1, Signals: intPtr(1), Renders: int64Ptr(2)}},
		},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(counterScenario())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, map[string]any{"count": 1}, result.State)

	types := make([]string, len(result.Trace))
	for i, e := range result.Trace {
		types[i] = e.Type
	}
	assert.Equal(t, []string{EventRender, EventChange, EventSignal, EventRender}, types)
}

func TestRun_TraceSeqIsMonotonic(t *testing.T) {
	result, err := Run(counterScenario())
	require.NoError(t, err)

	var last int64
	for _, e := range result.Trace {
		assert.GreaterOrEqual(t, e.Seq, last, "event %s", describeEvent(e))
		last = e.Seq
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	first, err := Run(counterScenario())
	require.NoError(t, err)
	second, err := Run(counterScenario())
	require.NoError(t, err)

	a, err := GoldenBytes("counter", first)
	require.NoError(t, err)
	b, err := GoldenBytes("counter", second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	scenario := counterScenario()
	scenario.Steps[2].Expect.Value = 99

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 3")
	assert.Contains(t, result.Errors[0], "expected value 99")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := counterScenario()
	scenario.Steps = append(scenario.Steps, Step{
		Write: &WriteStep{Key: container.ReservedKey, Value: "x"},
	})

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, "RESERVED_KEY", last.Code)
	assert.Equal(t, 4, last.Step)
}

func TestRun_ExpectedErrorMissingFails(t *testing.T) {
	scenario := counterScenario()
	scenario.Steps[0].Error = "READ_ONLY"

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error READ_ONLY, got success")
}

func TestRun_WrongErrorCodeFails(t *testing.T) {
	scenario := counterScenario()
	scenario.Steps = append(scenario.Steps, Step{
		Delete: &DeleteStep{Key: container.ReservedKey},
		Error:  "LOCKED",
	})

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error LOCKED, got RESERVED_KEY")
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("selector does not compile", func(t *testing.T) {
		scenario := counterScenario()
		scenario.Observers[0].Select = "count +"
		_, err := Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `observer "counter"`)
	})

	t.Run("initial state holds the reserved key", func(t *testing.T) {
		scenario := counterScenario()
		scenario.State = map[string]any{container.ReservedKey: "x"}
		_, err := Run(scenario)
		require.Error(t, err)
		assert.True(t, container.IsReservedKeyError(err))
	})

	t.Run("state file missing", func(t *testing.T) {
		scenario := counterScenario()
		scenario.State = nil
		scenario.StateFile = filepath.Join(t.TempDir(), "missing.cue")
		_, err := Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load state file")
	})
}

func TestRun_ScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_BusTopologyStampsChannel(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "bus_topology.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	var changes int
	for _, e := range result.Trace {
		if e.Type == EventChange {
			changes++
			assert.Equal(t, "bus_topology", e.Channel)
		}
	}
	assert.Equal(t, 1, changes)
	assert.NotContains(t, result.State, container.ReservedKey)
}

func TestRun_HiddenPropertyExcludedFromState(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "property_attributes.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.NotContains(t, result.State, "secret")
	assert.Contains(t, result.State, "version")
}

func TestRun_RenderLoopIsReported(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "render_loop.yaml"))
	require.NoError(t, err)
	scenario.Steps[1].Error = ""

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "exceeded render quota")
}

func TestRun_WithStoreJournalsRun(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "property_attributes.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario, WithStore(st))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	ctx := context.Background()
	changes, err := st.ReadChanges(ctx, "")
	require.NoError(t, err)

	// Three structural properties from the state file plus one define step.
	var defines []string
	for _, c := range changes {
		if c.Op == ir.OpDefine {
			defines = append(defines, c.Key)
		}
	}
	assert.Equal(t, []string{"version", "secret", "id", "count"}, defines)

	renders, err := st.ReadRenders(ctx, "keys")
	require.NoError(t, err)
	assert.Len(t, renders, 1)
}

func TestRun_WithStoreOnBus(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "bus_topology.yaml"))
	require.NoError(t, err)

	_, err = Run(scenario, WithStore(st))
	require.NoError(t, err)

	changes, err := st.ReadChanges(context.Background(), "bus_topology")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "count", changes[0].Key)
	assert.Equal(t, int64(5), changes[0].Value)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"render loop", &engine.RenderLoopError{Component: "c", Renders: 3, Limit: 2}, ErrCodeRenderLoop},
		{"joined render loop", errors.Join(errors.New("x"), &engine.RenderLoopError{}), ErrCodeRenderLoop},
		{"engine", &engine.RuntimeError{Code: engine.ErrCodeUnknownComponent}, string(engine.ErrCodeUnknownComponent)},
		{"container", fmt.Errorf("wrapped: %w", container.ErrReadOnly), "READ_ONLY"},
		{"other", errors.New("boom"), "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}
