package batch

import (
	"context"

	"github.com/roach88/flowmig/internal/migration"
	"github.com/roach88/flowmig/internal/runtime"
	"github.com/roach88/flowmig/internal/store"
)

// Instances selects process instances and runs one transaction per
// instance. *store.Store implements it.
type Instances interface {
	FindProcessInstances(ctx context.Context, q store.InstanceQuery) ([]string, error)
	RunInstanceTx(ctx context.Context, processInstanceID string, fn func(*runtime.State) error) error
}

var _ Instances = (*store.Store)(nil)

// Driver holds what every batch shares: the instance source, the migrator
// and the execution limits.
type Driver struct {
	instances   Instances
	migrator    *migration.Migrator
	authorizer  Authorizer
	ids         runtime.IDGenerator
	maxParallel int
	stopOnError bool
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithAuthorizer checks every plan before any instance is touched.
func WithAuthorizer(a Authorizer) DriverOption {
	return func(d *Driver) {
		d.authorizer = a
	}
}

// WithMaxParallel caps the workers of ExecuteAsync. Values <= 0 mean no
// limit.
func WithMaxParallel(n int) DriverOption {
	return func(d *Driver) {
		d.maxParallel = n
	}
}

// WithStopOnError makes ExecuteAsync skip instances not yet started once
// one instance fails.
func WithStopOnError(stop bool) DriverOption {
	return func(d *Driver) {
		d.stopOnError = stop
	}
}

// WithBatchIDs sets the generator for batch ids.
func WithBatchIDs(g runtime.IDGenerator) DriverOption {
	return func(d *Driver) {
		d.ids = g
	}
}

// NewDriver creates a driver migrating instances held by instances.
func NewDriver(instances Instances, migrator *migration.Migrator, opts ...DriverOption) *Driver {
	d := &Driver{
		instances:  instances,
		migrator:   migrator,
		authorizer: AllowAll{},
		ids:        runtime.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// migrateOne migrates one instance in its own transaction.
func (d *Driver) migrateOne(ctx context.Context, b *ExecutionBuilder, processInstanceID string) (*migration.Result, error) {
	var res *migration.Result
	err := d.instances.RunInstanceTx(ctx, processInstanceID, func(st *runtime.State) error {
		var err error
		res, err = d.migrator.Migrate(ctx, st, b.plan, processInstanceID, b.opts)
		return err
	})
	return res, err
}
