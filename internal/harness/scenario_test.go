package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ResolvesStateFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "property_attributes.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "attributes.cue"), scenario.StateFile)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingStateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: s
description: d
state_file: gone.cue
steps:
  - flush: true
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state file not found")
}

func TestParseScenario_Valid(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: s
description: d
topology: bus
state: { count: 0 }
observers:
  - { name: c, select: count, lang: cel }
steps:
  - write: { key: count, value: 1 }
  - expect: { observer: c, signals: 1 }
`))
	require.NoError(t, err)
	assert.Equal(t, TopologyBus, scenario.Topology)
	require.Len(t, scenario.Steps, 2)
	require.NotNil(t, scenario.Steps[1].Expect.Signals)
	assert.Equal(t, 1, *scenario.Steps[1].Expect.Signals)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: s\ndescription: d\nstep:\n  - flush: true\n",
			want: "field step not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nsteps:\n  - flush: true\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: s\nsteps:\n  - flush: true\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: s\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "unknown topology",
			yaml: "name: s\ndescription: d\ntopology: mesh\nsteps:\n  - flush: true\n",
			want: `unknown topology "mesh"`,
		},
		{
			name: "state and state_file",
			yaml: "name: s\ndescription: d\nstate: {a: 1}\nstate_file: x.cue\nsteps:\n  - flush: true\n",
			want: "mutually exclusive",
		},
		{
			name: "duplicate observer",
			yaml: "name: s\ndescription: d\nobservers:\n  - {name: a, select: x}\n  - {name: a, select: y}\nsteps:\n  - flush: true\n",
			want: `duplicate observer "a"`,
		},
		{
			name: "unknown lang",
			yaml: "name: s\ndescription: d\nobservers:\n  - {name: a, select: x, lang: lua}\nsteps:\n  - flush: true\n",
			want: "observers[0]",
		},
		{
			name: "two actions in one step",
			yaml: "name: s\ndescription: d\nsteps:\n  - flush: true\n    delete: {key: a}\n",
			want: "exactly one action is required, got 2",
		},
		{
			name: "empty step",
			yaml: "name: s\ndescription: d\nsteps:\n  - error: LOCKED\n",
			want: "exactly one action is required, got 0",
		},
		{
			name: "unknown observer reference",
			yaml: "name: s\ndescription: d\nsteps:\n  - enter: ghost\n",
			want: `unknown observer "ghost"`,
		},
		{
			name: "expect value without observer",
			yaml: "name: s\ndescription: d\nsteps:\n  - expect: {value: 1}\n",
			want: "observer is required",
		},
		{
			name: "unknown assertion",
			yaml: "name: s\ndescription: d\nsteps:\n  - flush: true\nassertions:\n  - type: trace_magic\n",
			want: `unknown assertion type "trace_magic"`,
		},
		{
			name: "trace_order without events",
			yaml: "name: s\ndescription: d\nsteps:\n  - flush: true\nassertions:\n  - type: trace_order\n",
			want: "events list is required",
		},
		{
			name: "final_state without expect",
			yaml: "name: s\ndescription: d\nsteps:\n  - flush: true\nassertions:\n  - type: final_state\n",
			want: "expect is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
