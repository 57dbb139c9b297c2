package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// DeployResult lists the definitions a deploy stored.
type DeployResult struct {
	Deployed []DefinitionSummary `json:"deployed"`
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [definitions-dir]",
		Short: "Compile and deploy process definitions",
		Long: `Compile the CUE process definitions in a directory, validate them and
store them in the database so plans and instances can reference them by id.

Redeploying an identical definition is a no-op. Deploying different content
under an existing id, or a second id for the same key and version, fails.

Example:
  flowmig deploy ./definitions
  flowmig deploy --db /tmp/flowmig.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, rootOpts.definitionsDir(args), cmd)
		},
	}
}

func runDeploy(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	defs, findings, err := loadDefinitions(dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err), err)
	}
	if len(findings) > 0 {
		return reportFindings(formatter, findings)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := commandContext(cmd)
	now := opts.Now()
	for _, def := range defs {
		if err := st.Deploy(ctx, def, now); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeStore, err)
		}
		slog.Info("definition deployed", "definition", def.ID, "key", def.Key, "version", def.Version)
	}

	if formatter.JSON() {
		return formatter.Success(DeployResult{Deployed: summarize(defs)})
	}
	for _, def := range defs {
		fmt.Fprintf(formatter.Writer, "✓ deployed %s\n", def.ID)
	}
	return nil
}
