package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/flowmig/internal/migration"
	"github.com/roach88/flowmig/internal/plan"
)

// InstanceResult is the outcome of migrating one process instance.
type InstanceResult struct {
	ProcessInstanceID string            `json:"process_instance"`
	Result            *migration.Result `json:"result,omitempty"`
	Err               error             `json:"-"`
}

// Failed reports whether the instance was not migrated.
func (r InstanceResult) Failed() bool { return r.Err != nil }

// Batch tracks an asynchronous batch started by ExecuteAsync.
type Batch struct {
	ID    string
	Plan  *plan.Plan
	Total int

	ids     []string
	done    chan struct{}
	mu      sync.Mutex
	results []InstanceResult
}

func newBatch(id string, p *plan.Plan, ids []string) *Batch {
	results := make([]InstanceResult, len(ids))
	for i, pi := range ids {
		results[i].ProcessInstanceID = pi
	}
	return &Batch{
		ID:      id,
		Plan:    p,
		Total:   len(ids),
		ids:     ids,
		done:    make(chan struct{}),
		results: results,
	}
}

// Done is closed when every instance has finished or been skipped.
func (bt *Batch) Done() <-chan struct{} { return bt.done }

// Wait blocks until the batch finishes or ctx is done, and returns the
// results in selection order.
func (bt *Batch) Wait(ctx context.Context) ([]InstanceResult, error) {
	select {
	case <-bt.done:
		return bt.Results(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Results returns a copy of the results recorded so far.
func (bt *Batch) Results() []InstanceResult {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	out := make([]InstanceResult, len(bt.results))
	copy(out, bt.results)
	return out
}

// Failed returns the results of instances that were not migrated.
func (bt *Batch) Failed() []InstanceResult {
	var out []InstanceResult
	for _, r := range bt.Results() {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

func (bt *Batch) record(i int, res *migration.Result, err error) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.results[i].Result = res
	bt.results[i].Err = err
}

// run migrates every instance with at most maxParallel in flight. With
// stopOnError the first failure cancels the group context and instances
// that have not started are recorded as skipped.
func (bt *Batch) run(ctx context.Context, b *ExecutionBuilder) {
	defer close(bt.done)

	g, gctx := errgroup.WithContext(ctx)
	if b.driver.maxParallel > 0 {
		g.SetLimit(b.driver.maxParallel)
	}

	for i, id := range bt.ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				bt.record(i, nil, fmt.Errorf("skipped: %w", err))
				return nil
			}
			res, err := b.driver.migrateOne(gctx, b, id)
			bt.record(i, res, err)
			if err != nil {
				slog.Warn("batch instance failed",
					"batch", bt.ID,
					"process_instance", id,
					"error", err)
				if b.driver.stopOnError {
					return err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("batch finished",
		"batch", bt.ID,
		"instances", bt.Total,
		"failed", len(bt.Failed()))
}
