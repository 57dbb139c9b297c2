package migration

import (
	"slices"

	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/plan"
)

// NodeKind classifies a migrating node.
type NodeKind string

const (
	KindActivity   NodeKind = "activity"
	KindTransition NodeKind = "transition"
	KindEventScope NodeKind = "event scope"
)

// MigratingInstance is one node of the migrating tree: an activity
// instance, a transition instance, or a completed scope kept for
// compensation. Parent and children are ids into the owning
// MigratingProcessInstance.
type MigratingInstance struct {
	ID         string
	Kind       NodeKind
	ActivityID string

	// ExecutionID is the representative execution carrying this node's
	// state. Phase A and B move it around the execution tree.
	ExecutionID string

	ParentID string
	Children []string

	SourceScope *definition.Activity

	// TargetScope is nil when the node has no counterpart in the target
	// definition and is removed.
	TargetScope *definition.Activity

	// Instruction is the instruction the target was resolved from. The
	// process instance root has none.
	Instruction *plan.Instruction

	Migrating []*Dependent
	Removing  []*Dependent
	Emerging  []*Dependent
}

// Migrates reports whether the node has a target scope.
func (n *MigratingInstance) Migrates() bool {
	return n.TargetScope != nil
}

// UpdateEventTrigger reports whether the node's instruction asks to refresh
// event triggers.
func (n *MigratingInstance) UpdateEventTrigger() bool {
	return n.Instruction != nil && n.Instruction.UpdateEventTrigger
}

func (n *MigratingInstance) addDependent(d *Dependent) {
	switch d.Decision {
	case Migrate:
		n.Migrating = append(n.Migrating, d)
	case Remove:
		n.Removing = append(n.Removing, d)
	case Emerge:
		n.Emerging = append(n.Emerging, d)
	}
}

// MigratingProcessInstance owns every node of one migration, keyed by id.
// It lives for the duration of one migration command.
type MigratingProcessInstance struct {
	ProcessInstanceID string
	RootID            string

	Source *definition.ProcessDefinition
	Target *definition.ProcessDefinition
	Plan   *plan.Plan

	nodes map[string]*MigratingInstance
	order []string
}

func newMigratingProcessInstance(processInstanceID string, source, target *definition.ProcessDefinition, p *plan.Plan) *MigratingProcessInstance {
	return &MigratingProcessInstance{
		ProcessInstanceID: processInstanceID,
		Source:            source,
		Target:            target,
		Plan:              p,
		nodes:             make(map[string]*MigratingInstance),
	}
}

// add registers n and links it under its parent.
func (m *MigratingProcessInstance) add(n *MigratingInstance) {
	m.nodes[n.ID] = n
	m.order = append(m.order, n.ID)
	if n.ParentID == "" {
		m.RootID = n.ID
		return
	}
	if parent := m.nodes[n.ParentID]; parent != nil {
		parent.Children = append(parent.Children, n.ID)
	}
}

// Node returns the node with the given id, or nil.
func (m *MigratingProcessInstance) Node(id string) *MigratingInstance {
	return m.nodes[id]
}

// Root returns the process instance node.
func (m *MigratingProcessInstance) Root() *MigratingInstance {
	return m.nodes[m.RootID]
}

// Parent returns the parent of n, or nil for the root.
func (m *MigratingProcessInstance) Parent(n *MigratingInstance) *MigratingInstance {
	if n.ParentID == "" {
		return nil
	}
	return m.nodes[n.ParentID]
}

// Children returns the child nodes of n in order.
func (m *MigratingProcessInstance) Children(n *MigratingInstance) []*MigratingInstance {
	out := make([]*MigratingInstance, 0, len(n.Children))
	for _, id := range n.Children {
		if c := m.nodes[id]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Nodes returns every node in parse order: parents before children.
func (m *MigratingProcessInstance) Nodes() []*MigratingInstance {
	out := make([]*MigratingInstance, 0, len(m.order))
	for _, id := range m.order {
		if n := m.nodes[id]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

// NodeByExecution returns the node whose representative execution is
// executionID, or nil.
func (m *MigratingProcessInstance) NodeByExecution(executionID string) *MigratingInstance {
	for _, id := range m.order {
		if n := m.nodes[id]; n != nil && n.ExecutionID == executionID {
			return n
		}
	}
	return nil
}

// NearestMigratingAncestor returns the closest ancestor of n that has a
// target scope. The root always migrates, so only the root itself has none.
func (m *MigratingProcessInstance) NearestMigratingAncestor(n *MigratingInstance) *MigratingInstance {
	for p := m.Parent(n); p != nil; p = m.Parent(p) {
		if p.Migrates() {
			return p
		}
	}
	return nil
}

// PostOrder returns the nodes below and including the root with every
// child before its parent.
func (m *MigratingProcessInstance) PostOrder() []*MigratingInstance {
	var out []*MigratingInstance
	var walk func(n *MigratingInstance)
	walk = func(n *MigratingInstance) {
		for _, c := range m.Children(n) {
			walk(c)
		}
		out = append(out, n)
	}
	if root := m.Root(); root != nil {
		walk(root)
	}
	return out
}

// replaceChild swaps old for the given ids in parent's child list, keeping
// their position.
func (m *MigratingProcessInstance) replaceChild(parent *MigratingInstance, old string, with []string) {
	i := slices.Index(parent.Children, old)
	if i < 0 {
		parent.Children = append(parent.Children, with...)
		return
	}
	parent.Children = slices.Replace(parent.Children, i, i+1, with...)
}

// remove deletes n from the arena. Its children must have been moved.
func (m *MigratingProcessInstance) remove(n *MigratingInstance) {
	delete(m.nodes, n.ID)
}
