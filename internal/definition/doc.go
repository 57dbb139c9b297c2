// Package definition holds the static, read-only process-definition model the
// migration engine navigates.
//
// A ProcessDefinition is a tree of Activity nodes rooted at a synthetic root
// activity (Behavior == BehaviorProcess, FlowScope == nil) whose ID equals the
// definition key. Every other activity has exactly one flow scope: the
// container activity it is declared in.
//
// # Scopes
//
// An activity is a scope when it can own runtime state of its own: processes,
// sub processes and event sub processes always are; any activity that carries
// event declarations (timers, message or signal subscriptions) becomes one.
//
// # Event declarations
//
// EventDeclaration records a trigger declared on an event scope. The
// triggering activity id identifies it: a boundary timer attached to a task is
// declared on the task with ActivityID set to the boundary event id; a
// task-level timeout uses the task's own id.
//
// Definitions are built programmatically (New, Activity.Add, Activity.Declare),
// compiled from CUE by the compiler package, or decoded from their JSON wire
// form when loaded from the store.
package definition
