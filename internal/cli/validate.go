package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowmig/internal/compiler"
	"github.com/roach88/flowmig/internal/definition"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	Definitions []DefinitionSummary        `json:"definitions,omitempty"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// DefinitionSummary identifies one compiled definition.
type DefinitionSummary struct {
	ID         string `json:"id"`
	Key        string `json:"key"`
	Version    int    `json:"version"`
	Activities int    `json:"activities"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [definitions-dir]",
		Short: "Validate process definitions without deploying",
		Long: `Compile the CUE process definitions in a directory and run the structural
checks (identity, versions, activity types, attachments, event declarations)
without touching the database.

The directory defaults to definitions_dir from flowmig.toml.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, rootOpts.definitionsDir(args), cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	defs, findings, err := loadDefinitions(dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err), err)
	}
	if len(findings) > 0 {
		return reportFindings(formatter, findings)
	}

	formatter.VerboseLog("Compiled %d definition(s) from %s", len(defs), dir)
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Definitions: summarize(defs)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d definition(s) valid\n", len(defs))
	for _, d := range defs {
		fmt.Fprintf(formatter.Writer, "  %s\n", d.ID)
	}
	return nil
}

func summarize(defs []*definition.ProcessDefinition) []DefinitionSummary {
	out := make([]DefinitionSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, DefinitionSummary{
			ID:         d.ID,
			Key:        d.Key,
			Version:    d.Version,
			Activities: len(d.Activities()),
		})
	}
	return out
}
