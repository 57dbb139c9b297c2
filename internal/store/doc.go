// Package store provides SQLite-backed storage for deployed process
// definitions and the runtime rows of running process instances.
//
// Tables:
//   - definitions: deployed definitions, one JSON body per id
//   - executions, jobs, event_subscriptions, tasks, variables, incidents:
//     runtime rows, each carrying its process instance id
//
// # Instance Transactions
//
// RunInstanceTx is the unit of migration: it loads one process instance
// into a runtime.State inside a transaction, hands it to the caller and
// rewrites the instance's rows from the state on success. Any error rolls
// the transaction back, so an instance is either fully migrated or
// untouched.
//
// # Deterministic Query Results
//
// Every query orders by id COLLATE BINARY so loaded states and instance
// lists are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Executions must reference a deployed definition
package store
