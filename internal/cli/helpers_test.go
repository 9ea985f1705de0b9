package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const counterScenario = `name: counter
description: "Counter renders once per change"
state:
  count: 0
observers:
  - name: counter
    select: count
steps:
  - write: { key: count, value: 1 }
  - flush: true
  - expect: { observer: counter, value: 1, signals: 1, renders: 2 }
`

const failingScenario = `name: failing
description: "Expects the wrong value"
state:
  count: 0
observers:
  - name: counter
    select: count
steps:
  - write: { key: count, value: 1 }
  - expect: { observer: counter, value: 2 }
`

// execute runs cmd with args and returns stdout and the command error.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeFile writes content under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
