package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/statebox/internal/ir"
	"github.com/roach88/statebox/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Channel   string // optional - filter changes to one channel
	Component string // optional - filter renders to one component
}

// TraceEvent represents a single event in the journal timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Type      string `json:"type"` // "change" or "render"
	Op        string `json:"op,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     any    `json:"value,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Component string `json:"component,omitempty"`
	Pass      int64  `json:"pass,omitempty"`

	EncodeError string `json:"encode_error,omitempty"` // value was not journaled
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Writes      int `json:"writes"`
	Deletes     int `json:"deletes"`
	Defines     int `json:"defines"`
	Renders     int `json:"renders"`
	Channels    int `json:"channels"`
	Components  int `json:"components"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a recorded journal",
		Long: `Show the changes and render passes recorded in a journal database.

Changes and renders are merged into one timeline ordered by logical
sequence number; a change is listed before the renders it caused.

The output includes:
- Timeline: Chronological list of changes and render passes
- Stats: Summary counts per kind

Examples:
  statebox trace --db ./journal.db
  statebox trace --db ./journal.db --channel counter
  statebox trace --db ./journal.db --component counter --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "only show changes on this channel")
	cmd.Flags().StringVar(&opts.Component, "component", "", "only show renders of this component")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	// store.Open creates missing files; a journal must already exist.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournalRead, "failed to open database", err)
	}
	defer st.Close()

	entries, err := st.ReadTrace(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournalRead, "failed to read journal", err)
	}

	result := buildTraceResult(entries, opts.Channel, opts.Component)
	if len(result.Timeline) == 0 {
		return formatter.Success(result, "No events found.\n")
	}
	return formatter.Success(result, formatTraceText(result))
}

// buildTraceResult converts journal entries to a filtered timeline.
// A channel filter drops renders unless a component filter is also set,
// and vice versa.
func buildTraceResult(entries []store.TraceEntry, channel, component string) TraceResult {
	result := TraceResult{Timeline: []TraceEvent{}}
	channels := make(map[string]bool)
	components := make(map[string]bool)

	for _, entry := range entries {
		switch entry.Kind {
		case store.EntryChange:
			c := entry.Change
			if c == nil {
				continue
			}
			if channel != "" && c.Channel != channel {
				continue
			}
			if channel == "" && component != "" {
				continue
			}
			result.Timeline = append(result.Timeline, TraceEvent{
				Seq:     c.Seq,
				Type:    string(store.EntryChange),
				Op:      string(c.Op),
				Key:     c.Key,
				Value:   c.Value,
				Channel: c.Channel,

				EncodeError: entry.EncodeError,
			})
			switch c.Op {
			case ir.OpWrite:
				result.Stats.Writes++
			case ir.OpDelete:
				result.Stats.Deletes++
			case ir.OpDefine:
				result.Stats.Defines++
			}
			if c.Channel != "" {
				channels[c.Channel] = true
			}

		case store.EntryRender:
			r := entry.Render
			if r == nil {
				continue
			}
			if component != "" && r.Component != component {
				continue
			}
			if component == "" && channel != "" {
				continue
			}
			result.Timeline = append(result.Timeline, TraceEvent{
				Seq:       r.Seq,
				Type:      string(store.EntryRender),
				Value:     r.Value,
				Component: r.Component,
				Pass:      r.Pass,

				EncodeError: entry.EncodeError,
			})
			result.Stats.Renders++
			components[r.Component] = true
		}
	}

	result.Stats.TotalEvents = len(result.Timeline)
	result.Stats.Channels = len(channels)
	result.Stats.Components = len(components)
	return result
}

// formatTraceText renders the timeline and stats for humans.
func formatTraceText(r TraceResult) string {
	var b strings.Builder

	fmt.Fprintln(&b, "Timeline:")
	for _, e := range r.Timeline {
		value := formatValue(e.Value)
		if e.EncodeError != "" {
			value = "<unencodable>"
		}
		switch e.Type {
		case string(store.EntryRender):
			fmt.Fprintf(&b, "  [seq=%d] render %s pass %d -> %s\n", e.Seq, e.Component, e.Pass, value)
		default:
			line := fmt.Sprintf("  [seq=%d] %s %s", e.Seq, e.Op, e.Key)
			if e.Op != string(ir.OpDelete) {
				line += " = " + value
			}
			if e.Channel != "" {
				line += fmt.Sprintf(" (channel %s)", e.Channel)
			}
			fmt.Fprintln(&b, line)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Stats:")
	fmt.Fprintf(&b, "  Events:     %d\n", r.Stats.TotalEvents)
	fmt.Fprintf(&b, "  Writes:     %d\n", r.Stats.Writes)
	fmt.Fprintf(&b, "  Deletes:    %d\n", r.Stats.Deletes)
	fmt.Fprintf(&b, "  Defines:    %d\n", r.Stats.Defines)
	fmt.Fprintf(&b, "  Renders:    %d\n", r.Stats.Renders)
	fmt.Fprintf(&b, "  Channels:   %d\n", r.Stats.Channels)
	fmt.Fprintf(&b, "  Components: %d\n", r.Stats.Components)
	return b.String()
}
