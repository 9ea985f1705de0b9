package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/statebox/internal/store"
)

func TestRunCommand_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path)
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario: counter")
	assert.Contains(t, out, "[seq=1] change  write count = 1")
	assert.Contains(t, out, "[seq=1] render  counter pass 2 -> 1")
	assert.Contains(t, out, "count = 1")
	assert.Contains(t, out, "✓ PASS")
}

func TestRunCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "counter", resp.Data.Name)
	assert.Len(t, resp.Data.Trace, 4)
}

func TestRunCommand_FailingScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "failing.yaml", failingScenario)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ FAIL")
	assert.Contains(t, out, "expected value 2, got 1")
}

func TestRunCommand_MissingScenario(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario not found")
}

func TestRunCommand_InvalidScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "name: bad\n")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunCommand_JournalsToDatabase(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counter.yaml", counterScenario)
	dbPath := filepath.Join(dir, "journal.db")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path, "--db", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	entries, err := st.ReadTrace(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, store.EntryRender, entries[0].Kind)
	assert.Equal(t, store.EntryChange, entries[1].Kind)
	assert.Equal(t, store.EntryRender, entries[2].Kind)
}
