package migration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/flowmig/internal/plan"
	"github.com/roach88/flowmig/internal/runtime"
)

// Options tune one migration.
type Options struct {
	// SkipCustomListeners and SkipIoMappings are accepted for callers that
	// set them; the engine runs no listeners or I/O mappings while
	// migrating.
	SkipCustomListeners bool
	SkipIoMappings      bool

	// DryRun parses and validates without changing anything.
	DryRun bool
}

// Result describes the migration of one process instance.
type Result struct {
	ProcessInstanceID string  `json:"process_instance"`
	DryRun            bool    `json:"dry_run,omitempty"`
	Stats             Stats   `json:"stats"`
	Report            *Report `json:"-"`

	Instance *MigratingProcessInstance `json:"-"`
}

// Migrator is the migration command: precondition checks, parse,
// validate, execute.
type Migrator struct {
	parser *Parser
	ids    runtime.IDGenerator
	clock  runtime.Clock
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithValidators replaces the default instance validators.
func WithValidators(validators ...InstanceValidator) Option {
	return func(m *Migrator) {
		m.parser.Validators = validators
	}
}

// WithIDGenerator sets the generator for executions, activity instances,
// jobs and subscriptions created during migration.
func WithIDGenerator(g runtime.IDGenerator) Option {
	return func(m *Migrator) {
		m.ids = g
	}
}

// WithClock sets the clock emerging and updated timers are due from.
func WithClock(c runtime.Clock) Option {
	return func(m *Migrator) {
		m.clock = c
	}
}

// NewMigrator creates a migrator resolving definitions through defs.
func NewMigrator(defs DefinitionResolver, opts ...Option) *Migrator {
	m := &Migrator{
		parser: NewParser(defs),
		ids:    runtime.UUIDv7Generator{},
		clock:  runtime.SystemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckRequest validates the inputs of a migration request before any
// instance is loaded.
func CheckRequest(p *plan.Plan, processInstanceIDs []string) error {
	if p == nil {
		return newMigrationError(ErrCodeMissingPlan, "", "migration plan is required")
	}
	if len(processInstanceIDs) == 0 {
		return newMigrationError(ErrCodeMissingInstances, "", "at least one process instance is required")
	}
	for _, id := range processInstanceIDs {
		if id == "" {
			return newMigrationError(ErrCodeMissingInstances, "", "process instance ids must not be empty")
		}
	}
	return nil
}

// Migrate migrates one process instance held by rt. rt must be scoped to
// one transaction; on any error the caller rolls it back.
//
// Returns *MigrationError for precondition failures, *ValidationError when
// the instance cannot be migrated (rt is untouched), and *EngineError for
// invariant violations during execution.
func (m *Migrator) Migrate(ctx context.Context, rt Runtime, p *plan.Plan, processInstanceID string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", processInstanceID, err)
	}
	if err := CheckRequest(p, []string{processInstanceID}); err != nil {
		return nil, err
	}

	slog.Debug("migrating process instance",
		"process_instance", processInstanceID,
		"plan", p.String(),
		"dry_run", opts.DryRun,
		"skip_custom_listeners", opts.SkipCustomListeners,
		"skip_io_mappings", opts.SkipIoMappings)

	mpi, report, err := m.parser.Parse(rt, p, processInstanceID)
	if err != nil {
		return nil, err
	}
	res := &Result{
		ProcessInstanceID: processInstanceID,
		DryRun:            opts.DryRun,
		Report:            report,
		Instance:          mpi,
	}
	if report.HasFailures() {
		slog.Warn("process instance cannot be migrated",
			"process_instance", processInstanceID,
			"failures", report.FailureCount())
		return res, &ValidationError{Report: report}
	}
	if opts.DryRun {
		return res, nil
	}

	stats, err := NewExecutor(rt, m.ids, m.clock).Execute(mpi)
	res.Stats = stats
	if err != nil {
		slog.Error("migration failed",
			"process_instance", processInstanceID,
			"error", err)
		return res, err
	}
	return res, nil
}
