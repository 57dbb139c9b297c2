package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/flowmig/internal/compiler"
	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/store"
)

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// openStore opens the configured database. The caller closes it.
func (o *RootOptions) openStore() (*store.Store, error) {
	slog.Debug("opening database", "path", o.Config.Database)
	st, err := store.Open(o.Config.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeStore, err)
	}
	return st, nil
}

// definitionsDir returns args[0] when given, else the configured directory.
func (o *RootOptions) definitionsDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return o.Config.DefinitionsDir
}

// closeStore closes st, logging rather than returning the error.
func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadDefinitions compiles every process definition in dir.
// Load errors (missing directory, no files, CUE build failures) are
// command errors; compile and validation findings are returned as
// validation errors for the caller to report.
func loadDefinitions(dir string) ([]*definition.ProcessDefinition, []compiler.ValidationError, error) {
	res, errs := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if res == nil && len(errs) > 0 {
		return nil, nil, errs[0]
	}

	var findings []compiler.ValidationError
	for _, err := range errs {
		var ve compiler.ValidationError
		var le *compiler.LoadError
		switch {
		case errors.As(err, &ve):
			findings = append(findings, ve)
		case errors.As(err, &le):
			line := 0
			if le.Pos.IsValid() {
				line = le.Pos.Line()
			}
			findings = append(findings, compiler.ValidationError{
				Field:   "load",
				Message: le.Message,
				Code:    le.Code,
				Line:    line,
			})
		default:
			findings = append(findings, compiler.ValidationError{
				Field:   "load",
				Message: err.Error(),
				Code:    compiler.ErrCodeGeneric,
			})
		}
	}
	slog.Debug("definitions compiled",
		"dir", dir,
		"files", res.FileCount,
		"definitions", len(res.Definitions),
		"findings", len(findings))
	return res.Definitions, findings, nil
}

// loadErrorCode returns the compiler code of a load failure.
func loadErrorCode(err error) string {
	return compiler.ErrorCode(err)
}

// reportFindings prints definition findings and returns the failure.
func reportFindings(f *OutputFormatter, findings []compiler.ValidationError) error {
	if f.JSON() {
		_ = f.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: findings},
			Error: &CLIError{
				Code:    findings[0].Code,
				Message: findings[0].Message,
			},
		})
	} else {
		fmt.Fprintln(f.Writer, "✗ Validation failed")
		fmt.Fprintln(f.Writer)
		for _, e := range findings {
			if e.Line > 0 {
				fmt.Fprintf(f.Writer, "line %d\n", e.Line)
			}
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
		}
	}
	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(findings)))
}
