// Package runtime holds the live state of running process instances: the
// execution tree and every entity attached to it (jobs, event subscriptions,
// tasks, variables, incidents).
//
// State is an in-memory, insertion-ordered model of one or more process
// instances. The migration core mutates it through narrow interfaces; the
// store loads it from and writes it back to SQLite inside one transaction.
//
// Execution-tree conventions:
//
//   - The process-instance execution has no parent, its ID equals the process
//     instance id, and it carries the root activity instance.
//   - Every activity instance has exactly one representative execution,
//     identified by Execution.ActivityInstanceID.
//   - Concurrent containers carry neither an activity nor an activity
//     instance; they only group concurrent branches under a scope.
//   - An execution with an activity but no activity instance is a transition
//     instance (an asynchronous continuation waiting for its job).
//   - Event-scope executions keep the state of completed scopes for
//     compensation and are not part of the activity-instance tree.
package runtime
