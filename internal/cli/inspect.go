package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/flowmig/internal/runtime"
	"github.com/roach88/flowmig/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	YAML bool
}

// InspectResult describes one process instance.
type InspectResult struct {
	ProcessInstanceID string                   `json:"process_instance"`
	Definition        string                   `json:"definition"`
	Fingerprint       string                   `json:"fingerprint"`
	Tree              *runtime.ActivityInstance `json:"tree"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <process-instance>",
		Short: "Show the activity instance tree of a process instance",
		Long: `Show the activity instance tree of a running process instance and the
fingerprint of its stored state. With --yaml the instance is exported as
a fixture that import accepts.

Example:
  flowmig inspect pi-1
  flowmig inspect pi-1 --yaml > pi-1.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.YAML, "yaml", false, "export the instance as a YAML fixture")

	return cmd
}

func runInspect(opts *InspectOptions, processInstanceID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := commandContext(cmd)
	if opts.YAML {
		f, err := st.ExportInstance(ctx, processInstanceID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return err
		}
		return enc.Close()
	}

	state, err := st.LoadInstance(ctx, processInstanceID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	tree, err := state.ActivityInstanceTree(processInstanceID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	fp, err := state.Fingerprint(processInstanceID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}

	result := InspectResult{
		ProcessInstanceID: processInstanceID,
		Definition:        state.Execution(processInstanceID).ProcessDefinitionID,
		Fingerprint:       fp,
		Tree:              tree,
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%s on %s\n", result.ProcessInstanceID, result.Definition)
	fmt.Fprintf(formatter.Writer, "fingerprint %s\n\n", result.Fingerprint)
	fmt.Fprint(formatter.Writer, tree.Format())
	return nil
}

// InstancesOptions holds flags for the instances command.
type InstancesOptions struct {
	*RootOptions
	Definition string
	Key        string
}

// NewInstancesCommand creates the instances command.
func NewInstancesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InstancesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List running process instances",
		Long: `List running process instances, optionally restricted to one definition
id or to every version of a definition key.

Example:
  flowmig instances --definition order:1
  flowmig instances --key order --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstances(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Definition, "definition", "", "only instances bound to this definition id")
	cmd.Flags().StringVar(&opts.Key, "key", "", "only instances of this definition key")

	return cmd
}

func runInstances(opts *InstancesOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ids, err := st.FindProcessInstances(commandContext(cmd), store.InstanceQuery{
		DefinitionID:  opts.Definition,
		DefinitionKey: opts.Key,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	if ids == nil {
		ids = []string{}
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"instances": ids})
	}
	if len(ids) == 0 {
		fmt.Fprintln(formatter.Writer, "No process instances found.")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(formatter.Writer, id)
	}
	return nil
}
