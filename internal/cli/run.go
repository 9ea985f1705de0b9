package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statebox/internal/harness"
	"github.com/roach88/statebox/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	State  map[string]any       `json:"state"`
	Trace  []harness.TraceEvent `json:"trace"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario and print its trace",
		Long: `Run a single scenario file and print the resulting trace and final state.

With --db, every committed change and every render pass is journaled
to a SQLite database (created if it doesn't exist) for later inspection
with the trace command.

Exit codes:
  0 - Scenario passed
  1 - Scenario failed
  2 - Command error (invalid paths, etc.)

Examples:
  statebox run ./scenarios/counter.yaml
  statebox run ./scenarios/counter.yaml --db ./journal.db
  statebox run ./scenarios/counter.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario not found: %s", path), nil)
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScenario, "failed to load scenario", err)
	}

	runOpts := []harness.Option{harness.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose))}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournalRead, "failed to open database", err)
		}
		defer st.Close()
		runOpts = append(runOpts, harness.WithStore(st))
		formatter.VerboseLog("Journaling to %s", opts.Database)
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScenario, "failed to set up scenario", err)
	}

	data := RunResult{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Errors: result.Errors,
		State:  result.State,
		Trace:  result.Trace,
	}
	text := formatRunText(data)

	if !result.Pass {
		return formatter.Failure(ErrCodeTestFailed, data, text, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return formatter.Success(data, text)
}

// formatRunText renders a run result as a timeline followed by the final
// state and any failures.
func formatRunText(r RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Scenario: %s\n\n", r.Name)
	fmt.Fprintln(&b, "Timeline:")
	for _, e := range r.Trace {
		fmt.Fprintf(&b, "  %s\n", formatTraceLine(e))
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Final state:")
	for _, k := range sortedKeys(r.State) {
		fmt.Fprintf(&b, "  %s = %s\n", k, formatValue(r.State[k]))
	}

	fmt.Fprintln(&b)
	if r.Pass {
		fmt.Fprintln(&b, "✓ PASS")
		return b.String()
	}
	fmt.Fprintln(&b, "✗ FAIL")
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	return b.String()
}

// formatTraceLine renders one harness trace event on a single line.
func formatTraceLine(e harness.TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[seq=%d] %-7s", e.Seq, e.Type)
	switch e.Type {
	case harness.EventChange:
		fmt.Fprintf(&b, " %s %s", e.Op, e.Key)
		if e.Op == "write" {
			fmt.Fprintf(&b, " = %s", formatValue(e.Value))
		}
		if e.Channel != "" {
			fmt.Fprintf(&b, " (channel %s)", e.Channel)
		}
	case harness.EventDefine:
		fmt.Fprintf(&b, " %s = %s", e.Key, formatValue(e.Value))
	case harness.EventRender:
		fmt.Fprintf(&b, " %s pass %d -> %s", e.Component, e.Pass, formatValue(e.Value))
	case harness.EventRead:
		if e.Observer != "" {
			fmt.Fprintf(&b, " %s via %s", e.Key, e.Observer)
		} else {
			fmt.Fprintf(&b, " %s", e.Key)
		}
		if e.Missing {
			b.WriteString(" (missing)")
		} else {
			fmt.Fprintf(&b, " = %s", formatValue(e.Value))
		}
	case harness.EventError:
		fmt.Fprintf(&b, " %s at step %d", e.Code, e.Step)
	default:
		fmt.Fprintf(&b, " %s", e.Observer)
	}
	return strings.TrimRight(b.String(), " ")
}
