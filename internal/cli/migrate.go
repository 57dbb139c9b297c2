package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flowmig/internal/batch"
	"github.com/roach88/flowmig/internal/migration"
	"github.com/roach88/flowmig/internal/plan"
	"github.com/roach88/flowmig/internal/store"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Instances           []string
	All                 bool
	DryRun              bool
	SkipPlanValidation  bool
	Behaviors           []string
	SkipCustomListeners bool
	SkipIoMappings      bool
	Async               bool
	MaxParallel         int
}

// MigrateResult is the outcome of a migrate run.
type MigrateResult struct {
	Plan      string            `json:"plan"`
	DryRun    bool              `json:"dry_run,omitempty"`
	Migrated  int               `json:"migrated"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped,omitempty"`
	Instances []InstanceOutcome `json:"instances"`
}

// InstanceOutcome is the per-instance part of MigrateResult.
type InstanceOutcome struct {
	ProcessInstanceID string           `json:"process_instance"`
	Status            string           `json:"status"` // "migrated" | "valid" | "failed" | "skipped"
	Stats             *migration.Stats `json:"stats,omitempty"`
	Error             string           `json:"error,omitempty"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate <plan.json>",
		Short: "Migrate process instances with a plan",
		Long: `Migrate running process instances with a JSON migration plan.

Select instances with --instance (repeatable) or every instance of the
plan's source definition with --all. Each instance migrates in its own
transaction; a failing instance is left unchanged.

By default instances migrate one after another and the run stops at the
first failure. --async migrates on a worker pool and reports every
instance; batch.stop_on_error in flowmig.toml skips instances not yet
started after a failure.

Exit codes:
  0 - All selected instances migrated
  1 - Plan invalid, or an instance could not be migrated
  2 - Command error (bad plan document, unknown instance, not authorized)

Example:
  flowmig migrate plan.json --instance pi-1 --instance pi-2
  flowmig migrate plan.json --all --async --max-parallel 8
  flowmig migrate plan.json --all --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Instances, "instance", nil, "process instance id to migrate (repeatable)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "migrate every instance of the plan's source definition")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate the instances without changing them")
	cmd.Flags().BoolVar(&opts.SkipPlanValidation, "skip-plan-validation", false, "do not validate the plan against the definitions")
	cmd.Flags().StringSliceVar(&opts.Behaviors, "behaviors", nil, "migratable activity behaviors for plan validation (default: userTask)")
	cmd.Flags().BoolVar(&opts.SkipCustomListeners, "skip-custom-listeners", false, "skip custom execution listeners")
	cmd.Flags().BoolVar(&opts.SkipIoMappings, "skip-io-mappings", false, "skip input/output mappings")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "migrate on a worker pool")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", 0, "worker limit for --async (default: batch.max_parallel)")

	return cmd
}

func runMigrate(opts *MigrateOptions, planPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if len(opts.Instances) == 0 && !opts.All {
		return NewExitError(ExitCommandError, "select instances with --instance or --all")
	}

	data, err := os.ReadFile(planPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
	}
	p, err := plan.Decode(data)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
	}
	policy, err := plan.SupportedBehaviors(opts.Behaviors...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodePlanDocument, err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := commandContext(cmd)
	if !opts.SkipPlanValidation {
		source, target, err := lookupDefinitions(ctx, st, p.SourceDefinitionID, p.TargetDefinitionID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err)
		}
		if err := plan.Check(source, target, p, policy...); err != nil {
			var verr *plan.ValidationError
			if errors.As(err, &verr) {
				return reportPlanInvalid(formatter, verr)
			}
			return formatter.Fail(ExitFailure, ErrCodePlanInvalid, err)
		}
	}

	repo, err := st.LoadDefinitions(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	authorizer, err := batch.NewAllowList(opts.Config.Authorization.Allowed)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	maxParallel := opts.Config.Batch.MaxParallel
	if opts.MaxParallel > 0 {
		maxParallel = opts.MaxParallel
	}
	driver := batch.NewDriver(st, migration.NewMigrator(repo),
		batch.WithAuthorizer(authorizer),
		batch.WithMaxParallel(maxParallel),
		batch.WithStopOnError(opts.Config.Batch.StopOnError))

	b := batch.NewExecutionBuilder(driver, p).ProcessInstanceIDs(opts.Instances...)
	if opts.All {
		b.Query(store.InstanceQuery{DefinitionID: p.SourceDefinitionID})
	}
	if opts.SkipCustomListeners {
		b.SkipCustomListeners()
	}
	if opts.SkipIoMappings {
		b.SkipIoMappings()
	}
	if opts.DryRun {
		b.DryRun()
	}

	formatter.VerboseLog("Migrating with plan %s", p.String())

	var (
		results []batch.InstanceResult
		runErr  error
	)
	if opts.Async {
		var bt *batch.Batch
		bt, runErr = b.ExecuteAsync(ctx)
		if runErr == nil {
			results, runErr = bt.Wait(ctx)
		}
	} else {
		results, runErr = b.Execute(ctx)
	}
	if results == nil && runErr != nil {
		return failBatch(formatter, runErr)
	}

	result := summarizeBatch(p, opts.DryRun, results)
	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			code := batchErrorCode(firstFailure(results, runErr))
			resp.Status = "error"
			resp.Error = &CLIError{Code: code, Message: fmt.Sprintf("%d process instance(s) not migrated", result.Failed)}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		printBatch(formatter, result)
	}

	if result.Failed > 0 || runErr != nil {
		err := firstFailure(results, runErr)
		return WrapExitError(batchExitCode(err), batchErrorCode(err), err)
	}
	return nil
}

// failBatch reports a failure raised before any instance ran.
func failBatch(f *OutputFormatter, err error) error {
	return f.Fail(batchExitCode(err), batchErrorCode(err), err)
}

// batchErrorCode maps a migration error to a CLI error code.
func batchErrorCode(err error) string {
	switch {
	case errors.Is(err, batch.ErrNotAuthorized):
		return ErrCodeNotAuthorized
	case migration.IsValidationError(err):
		return ErrCodeInstanceInvalid
	case migration.IsEngineError(err):
		return ErrCodeEngine
	case migration.IsUserError(err):
		return string(migration.Code(err))
	default:
		return ErrCodeStore
	}
}

// batchExitCode maps a migration error to an exit code: bad input is a
// command error, an instance that cannot migrate is a failure.
func batchExitCode(err error) int {
	switch {
	case errors.Is(err, batch.ErrNotAuthorized), migration.IsUserError(err):
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// skipped reports an instance that never started because the batch stopped.
func skipped(r batch.InstanceResult) bool {
	return r.Failed() && r.Result == nil && errors.Is(r.Err, context.Canceled)
}

func firstFailure(results []batch.InstanceResult, runErr error) error {
	for _, r := range results {
		if r.Failed() && !skipped(r) {
			return r.Err
		}
	}
	return runErr
}

func summarizeBatch(p *plan.Plan, dryRun bool, results []batch.InstanceResult) MigrateResult {
	out := MigrateResult{
		Plan:      p.String(),
		DryRun:    dryRun,
		Instances: make([]InstanceOutcome, 0, len(results)),
	}
	for _, r := range results {
		o := InstanceOutcome{ProcessInstanceID: r.ProcessInstanceID}
		switch {
		case skipped(r):
			o.Status = "skipped"
			out.Skipped++
		case r.Failed():
			o.Status = "failed"
			o.Error = r.Err.Error()
			out.Failed++
		case dryRun:
			o.Status = "valid"
			out.Migrated++
		default:
			o.Status = "migrated"
			stats := r.Result.Stats
			o.Stats = &stats
			out.Migrated++
		}
		out.Instances = append(out.Instances, o)
	}
	return out
}

func printBatch(f *OutputFormatter, result MigrateResult) {
	w := f.Writer
	for _, o := range result.Instances {
		switch o.Status {
		case "failed":
			fmt.Fprintf(w, "✗ %s\n", o.ProcessInstanceID)
			for _, line := range strings.Split(o.Error, "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		case "skipped":
			fmt.Fprintf(w, "- %s (skipped)\n", o.ProcessInstanceID)
		case "valid":
			fmt.Fprintf(w, "✓ %s (dry run)\n", o.ProcessInstanceID)
		default:
			fmt.Fprintf(w, "✓ %s", o.ProcessInstanceID)
			if o.Stats != nil {
				fmt.Fprintf(w, " (migrated %d, removed %d, emerged %d)", o.Stats.Migrated, o.Stats.Removed, o.Stats.Emerged)
			}
			fmt.Fprintln(w)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Migration Summary: %d migrated, %d failed, %d skipped, %d total\n",
		result.Migrated, result.Failed, result.Skipped, len(result.Instances))
}
