package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/flowmig/internal/migration"
	"github.com/roach88/flowmig/internal/plan"
	"github.com/roach88/flowmig/internal/store"
)

// ExecutionBuilder collects the instances and options of one migration
// batch.
//
//	res, err := batch.NewExecutionBuilder(driver, p).
//		Query(store.InstanceQuery{DefinitionID: p.SourceDefinitionID}).
//		SkipCustomListeners().
//		Execute(ctx)
type ExecutionBuilder struct {
	driver  *Driver
	plan    *plan.Plan
	ids     []string
	queries []store.InstanceQuery
	opts    migration.Options
}

// NewExecutionBuilder starts a batch migrating with p.
func NewExecutionBuilder(driver *Driver, p *plan.Plan) *ExecutionBuilder {
	return &ExecutionBuilder{driver: driver, plan: p}
}

// ProcessInstanceIDs adds explicit process instances.
func (b *ExecutionBuilder) ProcessInstanceIDs(ids ...string) *ExecutionBuilder {
	b.ids = append(b.ids, ids...)
	return b
}

// Query adds every process instance matching q.
func (b *ExecutionBuilder) Query(q store.InstanceQuery) *ExecutionBuilder {
	b.queries = append(b.queries, q)
	return b
}

func (b *ExecutionBuilder) SkipCustomListeners() *ExecutionBuilder {
	b.opts.SkipCustomListeners = true
	return b
}

func (b *ExecutionBuilder) SkipIoMappings() *ExecutionBuilder {
	b.opts.SkipIoMappings = true
	return b
}

// DryRun validates every instance without changing any.
func (b *ExecutionBuilder) DryRun() *ExecutionBuilder {
	b.opts.DryRun = true
	return b
}

// resolve returns the selected instance ids, explicit ids first, without
// duplicates, after checking the request and the plan's authorization.
func (b *ExecutionBuilder) resolve(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(b.ids))
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, id := range b.ids {
		add(id)
	}
	for _, q := range b.queries {
		found, err := b.driver.instances.FindProcessInstances(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("select process instances: %w", err)
		}
		for _, id := range found {
			add(id)
		}
	}

	if err := migration.CheckRequest(b.plan, ids); err != nil {
		return nil, err
	}
	if err := b.driver.authorizer.Authorize(b.plan); err != nil {
		return nil, err
	}
	return ids, nil
}

// Execute migrates the selected instances one after another and stops at
// the first failure. Instances migrated before the failure stay migrated.
func (b *ExecutionBuilder) Execute(ctx context.Context) ([]InstanceResult, error) {
	ids, err := b.resolve(ctx)
	if err != nil {
		return nil, err
	}

	batchID := b.driver.ids.Generate()
	slog.Info("batch started",
		"batch", batchID,
		"plan", b.plan.String(),
		"instances", len(ids),
		"mode", "sync")

	results := make([]InstanceResult, 0, len(ids))
	for _, id := range ids {
		res, err := b.driver.migrateOne(ctx, b, id)
		results = append(results, InstanceResult{ProcessInstanceID: id, Result: res, Err: err})
		if err != nil {
			slog.Warn("batch instance failed",
				"batch", batchID,
				"process_instance", id,
				"error", err)
			return results, fmt.Errorf("process instance %s: %w", id, err)
		}
	}

	slog.Info("batch finished",
		"batch", batchID,
		"migrated", len(results))
	return results, nil
}

// ExecuteAsync starts migrating the selected instances on a worker pool and
// returns at once. Selection and authorization errors are returned
// directly; per-instance outcomes are collected by the returned Batch.
func (b *ExecutionBuilder) ExecuteAsync(ctx context.Context) (*Batch, error) {
	ids, err := b.resolve(ctx)
	if err != nil {
		return nil, err
	}
	bt := newBatch(b.driver.ids.Generate(), b.plan, ids)
	slog.Info("batch started",
		"batch", bt.ID,
		"plan", b.plan.String(),
		"instances", len(ids),
		"mode", "async",
		"max_parallel", b.driver.maxParallel)
	go bt.run(ctx, b)
	return bt, nil
}
