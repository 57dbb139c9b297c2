package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/flowmig/internal/batch"
	"github.com/roach88/flowmig/internal/compiler"
	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/migration"
	"github.com/roach88/flowmig/internal/plan"
	"github.com/roach88/flowmig/internal/runtime"
	"github.com/roach88/flowmig/internal/store"
	"github.com/roach88/flowmig/internal/testutil"
)

// Harness holds the fresh store and deterministic helpers of one scenario
// run.
type Harness struct {
	store *store.Store
	clock *testutil.FixedClock
	ids   *testutil.SequenceGenerator
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Generated ids come from a "gen-" sequence and the clock is fixed at
// testutil.Epoch, so results are reproducible.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Compile and deploy the definitions
// 3. Import the running instances
// 4. Build the plan and run the migration step
// 5. Compare the outcome and evaluate assertions
//
// Errors setting up the scenario are returned; everything the migration
// step does is reported on the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store: st,
		clock: testutil.NewFixedClock(testutil.Epoch),
		ids:   testutil.NewSequenceGenerator("gen"),
	}
	ctx := context.Background()

	if err := h.deploy(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to deploy definitions: %w", err)
	}
	result := NewResult()
	if err := h.importInstances(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to import instances: %w", err)
	}
	if err := h.fingerprint(ctx, result, result.Before); err != nil {
		return nil, err
	}

	stepErr := h.migrate(ctx, scenario)
	var setupErr *setupError
	if errors.As(stepErr, &setupErr) {
		return nil, fmt.Errorf("failed to run migration: %w", setupErr.err)
	}
	result.Outcome = classify(stepErr)
	if stepErr != nil {
		result.Error = stepErr.Error()
	}

	for _, pi := range result.Instances {
		state, err := st.LoadInstance(ctx, pi)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", pi, err)
		}
		result.States[pi] = state
	}
	if err := h.fingerprint(ctx, result, result.After); err != nil {
		return nil, err
	}

	checkExpect(scenario.Migrate.Expect, result)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// deploy compiles every definition source of the scenario and deploys it.
func (h *Harness) deploy(ctx context.Context, s *Scenario) error {
	var defs []*definition.ProcessDefinition
	for _, p := range s.Definitions {
		compiled, err := compilePath(s.resolve(p))
		if err != nil {
			return err
		}
		defs = append(defs, compiled...)
	}
	if s.Source != "" {
		compiled, errs := compiler.CompileSource(s.Name+".cue", s.Source)
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		defs = append(defs, compiled...)
	}
	for _, def := range defs {
		if err := h.store.Deploy(ctx, def, h.clock.Now()); err != nil {
			return err
		}
	}
	return nil
}

// compilePath compiles a CUE package directory or a single CUE file.
func compilePath(path string) ([]*definition.ProcessDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		res, errs := compiler.LoadDir(path, compiler.LoadModeCollectAll)
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return res.Definitions, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defs, errs := compiler.CompileSource(path, string(src))
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

func (h *Harness) importInstances(ctx context.Context, s *Scenario, result *Result) error {
	var fixtures []*runtime.Fixture
	for _, p := range s.InstanceFiles {
		loaded, err := runtime.LoadFixtureFile(s.resolve(p))
		if err != nil {
			return err
		}
		fixtures = append(fixtures, loaded...)
	}
	fixtures = append(fixtures, s.Instances...)

	for _, f := range fixtures {
		if err := h.store.ImportFixture(ctx, f); err != nil {
			return err
		}
		result.Instances = append(result.Instances, f.ProcessInstance)
	}
	return nil
}

func (h *Harness) fingerprint(ctx context.Context, result *Result, into map[string]string) error {
	for _, pi := range result.Instances {
		state, err := h.store.LoadInstance(ctx, pi)
		if err != nil {
			return fmt.Errorf("failed to load instance %s: %w", pi, err)
		}
		fp, err := state.Fingerprint(pi)
		if err != nil {
			return fmt.Errorf("failed to fingerprint instance %s: %w", pi, err)
		}
		into[pi] = fp
	}
	return nil
}

// setupError marks a failure of the scenario itself rather than of the
// migration step under test.
type setupError struct {
	err error
}

func (e *setupError) Error() string { return e.err.Error() }

func (e *setupError) Unwrap() error { return e.err }

// migrate builds the plan and runs the batch, returning the error of the
// step under test or a *setupError.
func (h *Harness) migrate(ctx context.Context, s *Scenario) error {
	repo, err := h.store.LoadDefinitions(ctx)
	if err != nil {
		return &setupError{err}
	}
	p, err := buildPlan(repo, s)
	if err != nil {
		return err
	}

	var authorizer batch.Authorizer = batch.AllowAll{}
	if len(s.Migrate.Allowed) > 0 {
		al, err := batch.NewAllowList(s.Migrate.Allowed)
		if err != nil {
			return &setupError{err}
		}
		authorizer = al
	}
	migrator := migration.NewMigrator(repo,
		migration.WithIDGenerator(h.ids),
		migration.WithClock(h.clock))
	driver := batch.NewDriver(h.store, migrator,
		batch.WithAuthorizer(authorizer),
		batch.WithBatchIDs(testutil.NewSequenceGenerator("batch")))

	b := batch.NewExecutionBuilder(driver, p)
	if len(s.Migrate.Instances) > 0 {
		b.ProcessInstanceIDs(s.Migrate.Instances...)
	} else {
		b.Query(store.InstanceQuery{DefinitionID: p.SourceDefinitionID})
	}
	if s.Migrate.DryRun {
		b.DryRun()
	}
	_, err = b.Execute(ctx)
	return err
}

// buildPlan returns the plan or the plan error under test. Failures such
// as an undeployed definition are returned as *setupError.
func buildPlan(repo *definition.Repository, s *Scenario) (*plan.Plan, error) {
	spec := s.Plan
	if spec.File != "" {
		data, err := os.ReadFile(s.resolve(spec.File))
		if err != nil {
			return nil, &setupError{fmt.Errorf("failed to read plan: %w", err)}
		}
		p, err := plan.Decode(data)
		if err != nil {
			return nil, err
		}
		if spec.SkipValidation {
			return p, nil
		}
		source, target, err := planDefinitions(repo, p.SourceDefinitionID, p.TargetDefinitionID)
		if err != nil {
			return nil, err
		}
		if err := plan.Check(source, target, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	source, target, err := planDefinitions(repo, spec.Source, spec.Target)
	if err != nil {
		return nil, err
	}
	b := plan.NewBuilder(source, target)
	if spec.MapEqual {
		b.MapEqualActivities()
		if spec.UpdateEventTriggers {
			b.UpdateEventTriggers()
		}
	}
	for _, in := range spec.Instructions {
		b.MapActivities(in.Source, in.Target)
		if in.UpdateEventTrigger {
			b.UpdateEventTrigger()
		}
	}
	if spec.SkipValidation {
		return b.Unvalidated()
	}
	return b.Build()
}

func planDefinitions(repo *definition.Repository, sourceID, targetID string) (*definition.ProcessDefinition, *definition.ProcessDefinition, error) {
	source, err := repo.Get(sourceID)
	if err != nil {
		return nil, nil, &setupError{fmt.Errorf("plan source: %w", err)}
	}
	target, err := repo.Get(targetID)
	if err != nil {
		return nil, nil, &setupError{fmt.Errorf("plan target: %w", err)}
	}
	return source, target, nil
}

// classify maps the step error onto an outcome.
func classify(err error) string {
	var planErr *plan.ValidationError
	var docErr *plan.DocumentError
	switch {
	case err == nil:
		return OutcomeMigrated
	case errors.As(err, &planErr), errors.As(err, &docErr):
		return OutcomeInvalidPlan
	case migration.IsValidationError(err):
		return OutcomeValidationFailed
	case migration.IsEngineError(err):
		return OutcomeEngineError
	case migration.IsUserError(err), errors.Is(err, batch.ErrNotAuthorized):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// checkExpect compares the outcome and error text with the expectation.
func checkExpect(expect Expect, result *Result) {
	if result.Outcome != expect.Outcome {
		msg := fmt.Sprintf("outcome: expected %s, got %s", expect.Outcome, result.Outcome)
		if result.Error != "" {
			msg += ": " + result.Error
		}
		result.AddError(msg)
	}
	for _, f := range expect.Failures {
		if !strings.Contains(result.Error, f) {
			result.AddError(fmt.Sprintf("expected failure %q not found in %q", f, result.Error))
		}
	}
}
