package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const attributesCUE = `state: {
	count:   0
	version: 1     @prop(readonly)
	secret:  "s"   @prop(hidden, locked)
}
`

func TestValidateCommand_Scenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterScenario)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Valid scenario")
	assert.Contains(t, out, "observer counter")
}

func TestValidateCommand_ScenarioWithBadSelector(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", `name: bad
description: "Selector does not compile"
observers:
  - name: broken
    lang: cel
    select: "count +"
steps:
  - flush: true
`)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, ErrCodeSelector+": observers.broken.select")
}

func TestValidateCommand_ScenarioWithStateFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "state.cue", attributesCUE)
	path := writeFile(t, dir, "attrs.yaml", `name: attrs
description: "Uses a state file"
state_file: state.cue
steps:
  - flush: true
`)

	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)
}

func TestValidateCommand_StateFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "state.cue", attributesCUE)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "state", resp.Data.Kind)
	require.Len(t, resp.Data.Properties, 3)
	assert.Equal(t, "count", resp.Data.Properties[0].Key)
	assert.Equal(t, []string{"readonly"}, resp.Data.Properties[1].Attributes)
	assert.Equal(t, []string{"hidden", "locked"}, resp.Data.Properties[2].Attributes)
}

func TestValidateCommand_StateFileError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.cue", "state: {\n\tcount: int\n}\n")

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeStateFile)
}

func TestValidateCommand_UnknownExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", "hello")

	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unrecognized file type")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "x.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
