package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/statebox/internal/compiler"
	"github.com/roach88/statebox/internal/harness"
	"github.com/roach88/statebox/internal/selector"
)

// ValidationError is one problem found while validating a file.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Kind       string            `json:"kind"` // "scenario" or "state"
	Properties []PropertySummary `json:"properties,omitempty"`
	Observers  []string          `json:"observers,omitempty"`
	Errors     []ValidationError `json:"errors,omitempty"`
}

// PropertySummary describes one property of a validated state file.
type PropertySummary struct {
	Key        string   `json:"key"`
	Value      any      `json:"value"`
	Attributes []string `json:"attributes,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a scenario or CUE state file without running it",
		Long: `Validate a scenario (.yaml, .yml) or a CUE state file (.cue).

Scenarios are parsed strictly, their state file (if any) is compiled
and every observer selector is compiled in its language. State files
are compiled and their properties and attributes listed.

Examples:
  statebox validate ./scenarios/counter.yaml
  statebox validate ./state/counter.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path), nil)
	}

	var result ValidationResult
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		result = validateScenarioFile(path, formatter)
	case ".cue":
		result = validateStateFile(path)
	default:
		return formatter.Fail(ExitCommandError, ErrCodeUnknownType, fmt.Sprintf("unrecognized file type: %s", path), nil)
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	result.Valid = true
	return formatter.Success(result, formatValidateText(result))
}

// validateScenarioFile loads a scenario and compiles its state file and
// every selector.
func validateScenarioFile(path string, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Kind: "scenario"}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "scenario",
			Message: err.Error(),
			Code:    ErrCodeScenario,
		})
		return result
	}

	if scenario.StateFile != "" {
		formatter.VerboseLog("Compiling state file %s", scenario.StateFile)
		if _, err := compiler.LoadStateFile(scenario.StateFile); err != nil {
			result.Errors = append(result.Errors, compileValidationError(err))
		}
	}

	set := selector.NewSet()
	for _, o := range scenario.Observers {
		formatter.VerboseLog("Compiling selector for observer %s", o.Name)
		lang := o.Lang
		if lang == "" {
			lang = string(selector.DefaultLang)
		}
		sources := [][2]string{{"observers." + o.Name + ".select", o.Select}}
		if o.Effect != nil {
			sources = append(sources, [2]string{"observers." + o.Name + ".effect", o.Effect.Select})
		}
		for _, src := range sources {
			if _, err := set.Compile(lang, src[1]); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   src[0],
					Message: err.Error(),
					Code:    ErrCodeSelector,
				})
			}
		}
		result.Observers = append(result.Observers, o.Name)
	}

	return result
}

// validateStateFile compiles a CUE state file and summarizes it.
func validateStateFile(path string) ValidationResult {
	result := ValidationResult{Kind: "state"}

	def, err := compiler.LoadStateFile(path)
	if err != nil {
		result.Errors = append(result.Errors, compileValidationError(err))
		return result
	}

	for _, p := range def.Properties {
		summary := PropertySummary{Key: p.Key, Value: p.Value}
		if p.ReadOnly {
			summary.Attributes = append(summary.Attributes, "readonly")
		}
		if p.Hidden {
			summary.Attributes = append(summary.Attributes, "hidden")
		}
		if p.Locked {
			summary.Attributes = append(summary.Attributes, "locked")
		}
		result.Properties = append(result.Properties, summary)
	}
	return result
}

// compileValidationError converts a compiler error, keeping its line.
func compileValidationError(err error) ValidationError {
	var cErr *compiler.CompileError
	if errors.As(err, &cErr) {
		return ValidationError{
			Field:   cErr.Field,
			Message: cErr.Message,
			Code:    ErrCodeStateFile,
			Line:    getLineFromTokenPos(cErr.Pos),
		}
	}
	return ValidationError{Field: "state", Message: err.Error(), Code: ErrCodeStateFile}
}

// getLineFromTokenPos extracts line number from a cue token.Pos.
func getLineFromTokenPos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

func formatValidateText(r ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Valid %s\n", r.Kind)
	for _, p := range r.Properties {
		line := fmt.Sprintf("  %s = %s", p.Key, formatValue(p.Value))
		if len(p.Attributes) > 0 {
			line += " @" + strings.Join(p.Attributes, ",")
		}
		fmt.Fprintln(&b, line)
	}
	for _, o := range r.Observers {
		fmt.Fprintf(&b, "  observer %s\n", o)
	}
	return b.String()
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	var b strings.Builder
	fmt.Fprintln(&b, "✗ Validation failed")
	fmt.Fprintln(&b)
	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(&b, "line %d\n", err.Line)
		}
		fmt.Fprintf(&b, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	first := result.Errors[0]
	return formatter.Failure(first.Code, result, b.String(),
		fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
