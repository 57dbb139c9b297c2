// Package migration moves running process instances from one definition
// version to another.
//
// A migration of one process instance runs in three steps:
//
//  1. Parse: the activity-instance tree of the instance is wrapped into a
//     MigratingProcessInstance. Every node resolves its source scope, the
//     first applicable instruction and its target scope. A container without
//     an instruction keeps its same-id target when everything mapped below
//     it stays inside. Dependent handlers
//     decide for every job, event subscription, task, variable and incident
//     whether it migrates, is removed, or emerges new from the target
//     definition. Anything no handler consumed is reported.
//  2. Validate: instance validators inspect every node in context. All
//     failures are collected into one Report; if it has any, nothing is
//     mutated and a *ValidationError is returned.
//  3. Execute: Phase A walks the node tree bottom-up and removes nodes
//     without a target. Phase B walks top-down with an ExecutionBranch,
//     creates missing intermediate scopes and rebinds state.
//
// The package never loads or stores rows itself. It works against the
// Runtime interface, which runtime.State implements, inside a transaction
// owned by the caller.
package migration
