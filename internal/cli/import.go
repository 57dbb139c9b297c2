package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/flowmig/internal/runtime"
)

// ImportResult lists the imported process instances.
type ImportResult struct {
	Imported []string `json:"imported"`
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Replace bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <fixture.yaml>...",
		Short: "Import running process instances",
		Long: `Import running process instances from YAML fixtures. Each YAML document
describes one instance: its executions, jobs, event subscriptions, tasks,
variables and incidents. The definitions they reference must be deployed.
An instance that already exists is an error unless --replace is set, which
drops its stored rows first.

Example:
  flowmig import instances.yaml
  flowmig inspect pi-1 --yaml > pi-1.yaml && flowmig import --replace pi-1.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "replace instances that already exist")

	return cmd
}

func runImport(opts *ImportOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var fixtures []*runtime.Fixture
	for _, path := range paths {
		loaded, err := runtime.LoadFixtureFile(path)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeFixture, err)
		}
		fixtures = append(fixtures, loaded...)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := commandContext(cmd)
	result := ImportResult{Imported: make([]string, 0, len(fixtures))}
	for _, f := range fixtures {
		if opts.Replace {
			if err := st.DeleteInstance(ctx, f.ProcessInstance); err != nil {
				return formatter.Fail(ExitFailure, ErrCodeStore, err)
			}
		}
		if err := st.ImportFixture(ctx, f); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeFixture, err)
		}
		slog.Info("process instance imported", "process_instance", f.ProcessInstance, "definition", f.Definition)
		result.Imported = append(result.Imported, f.ProcessInstance)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ imported %d process instance(s)\n", len(result.Imported))
	return nil
}
