package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/plan"
	"github.com/roach88/flowmig/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Output              string
	Mappings            []string // "source=target"
	NoEqual             bool
	UpdateEventTriggers bool
	SkipValidation      bool
	Behaviors           []string
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <source-definition> <target-definition>",
		Short: "Generate a migration plan document",
		Long: `Generate a JSON migration plan between two deployed definitions.

Activities with equal ids in equal scopes are mapped automatically. Extra
mappings are added with --map source=target; a trailing "!" on the target
(--map review=check!) asks to update that instruction's event triggers.
The plan is validated unless --skip-validation is set. Only user tasks are
migratable by default; --behaviors widens the policy for both the automatic
mapping and validation.

Example:
  flowmig generate order:1 order:2 -o plan.json
  flowmig generate order:1 order:2 --map review=approve --update-event-triggers
  flowmig generate order:1 order:2 --behaviors userTask,serviceTask`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the plan to a file instead of stdout")
	cmd.Flags().StringArrayVar(&opts.Mappings, "map", nil, "explicit mapping source=target (repeatable)")
	cmd.Flags().BoolVar(&opts.NoEqual, "no-equal", false, "do not map equal activities automatically")
	cmd.Flags().BoolVar(&opts.UpdateEventTriggers, "update-event-triggers", false, "update event triggers of generated instructions")
	cmd.Flags().BoolVar(&opts.SkipValidation, "skip-validation", false, "emit the plan without validating it")
	cmd.Flags().StringSliceVar(&opts.Behaviors, "behaviors", nil, "migratable activity behaviors (default: userTask)")

	return cmd
}

func runGenerate(opts *GenerateOptions, sourceID, targetID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	policy, err := plan.SupportedBehaviors(opts.Behaviors...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	source, target, err := lookupDefinitions(commandContext(cmd), st, sourceID, targetID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}

	b := plan.NewBuilder(source, target).WithActivityValidators(policy...)
	if !opts.NoEqual {
		b.MapEqualActivities()
		if opts.UpdateEventTriggers {
			b.UpdateEventTriggers()
		}
	}
	for _, m := range opts.Mappings {
		src, tgt, update, err := parseMapping(m)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
		}
		b.MapActivities(src, tgt)
		if update {
			b.UpdateEventTrigger()
		}
	}

	var p *plan.Plan
	if opts.SkipValidation {
		p, err = b.Unvalidated()
	} else {
		p, err = b.Build()
	}
	if err != nil {
		var verr *plan.ValidationError
		if errors.As(err, &verr) {
			return reportPlanInvalid(formatter, verr)
		}
		return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
	}

	data, err := plan.Encode(p)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
	}
	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
	}
	formatter.VerboseLog("Wrote %d instruction(s) to %s", len(p.Instructions), opts.Output)
	if formatter.JSON() {
		return formatter.Success(map[string]any{"plan": opts.Output, "instructions": len(p.Instructions)})
	}
	fmt.Fprintf(formatter.Writer, "✓ plan %s -> %s with %d instruction(s) written to %s\n",
		p.SourceDefinitionID, p.TargetDefinitionID, len(p.Instructions), opts.Output)
	return nil
}

// parseMapping splits "source=target" and a trailing "!" update marker.
func parseMapping(s string) (string, string, bool, error) {
	source, target, ok := strings.Cut(s, "=")
	target, update := strings.CutSuffix(target, "!")
	if !ok || source == "" || target == "" {
		return "", "", false, fmt.Errorf("mapping %q: expected source=target", s)
	}
	return source, target, update, nil
}

func lookupDefinitions(ctx context.Context, st *store.Store, sourceID, targetID string) (*definition.ProcessDefinition, *definition.ProcessDefinition, error) {
	source, err := st.Definition(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	target, err := st.Definition(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

// reportPlanInvalid prints a plan validation report.
func reportPlanInvalid(f *OutputFormatter, verr *plan.ValidationError) error {
	if f.JSON() {
		_ = f.Error(ErrCodePlanInvalid, "migration plan is not valid", strings.Split(verr.Error(), "\n"))
	} else {
		fmt.Fprintln(f.Writer, "✗ "+verr.Error())
	}
	return WrapExitError(ExitFailure, ErrCodePlanInvalid, verr)
}
