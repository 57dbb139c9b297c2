package migration

import "maps"

// ExecutionBranch maps target scopes to the execution that represents them
// in the subtree being migrated, and records visited nodes. Descending into
// a node's children works on a Copy, so executions created for one subtree
// never leak into a sibling's ancestors.
type ExecutionBranch struct {
	executions map[string]string
	visited    map[string]bool
}

// NewExecutionBranch returns an empty branch.
func NewExecutionBranch() *ExecutionBranch {
	return &ExecutionBranch{
		executions: make(map[string]string),
		visited:    make(map[string]bool),
	}
}

// Copy returns an independent branch with the same contents.
func (b *ExecutionBranch) Copy() *ExecutionBranch {
	return &ExecutionBranch{
		executions: maps.Clone(b.executions),
		visited:    maps.Clone(b.visited),
	}
}

// Register records execution as the representative of scope. A scope
// already registered keeps its execution.
func (b *ExecutionBranch) Register(scopeID, executionID string) {
	if _, ok := b.executions[scopeID]; ok {
		return
	}
	b.executions[scopeID] = executionID
}

// Execution returns the execution registered for scope.
func (b *ExecutionBranch) Execution(scopeID string) (string, bool) {
	id, ok := b.executions[scopeID]
	return id, ok
}

// Visit marks a node visited and reports whether it was already.
func (b *ExecutionBranch) Visit(nodeID string) bool {
	seen := b.visited[nodeID]
	b.visited[nodeID] = true
	return seen
}

// Visited reports whether a node was visited.
func (b *ExecutionBranch) Visited(nodeID string) bool {
	return b.visited[nodeID]
}
