package migration

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/runtime"
)

// Stats summarizes what one execution changed.
type Stats struct {
	RemovedInstances int `json:"removed_instances"`
	CreatedScopes    int `json:"created_scopes"`
	Migrated         int `json:"migrated"`
	Removed          int `json:"removed"`
	Emerged          int `json:"emerged"`
}

// Executor applies a validated MigratingProcessInstance to the runtime.
// It must only run after the report came back empty.
//
// Thread-safety: an Executor serves one migration at a time.
type Executor struct {
	rt    Runtime
	ids   runtime.IDGenerator
	clock runtime.Clock

	forked []string
	stats  Stats
}

// NewExecutor creates an executor mutating rt.
func NewExecutor(rt Runtime, ids runtime.IDGenerator, clock runtime.Clock) *Executor {
	return &Executor{rt: rt, ids: ids, clock: clock}
}

// Execute runs Phase A to completion, then Phase B, then binds every record
// of the instance to the target definition.
func (x *Executor) Execute(mpi *MigratingProcessInstance) (Stats, error) {
	x.forked = nil
	x.stats = Stats{}

	if err := x.removeUnmapped(mpi); err != nil {
		return x.stats, err
	}
	if err := x.migrateTree(mpi); err != nil {
		return x.stats, err
	}
	if err := x.collapseForked(mpi); err != nil {
		return x.stats, err
	}
	x.bindDefinition(mpi)

	slog.Info("migrated process instance",
		"process_instance", mpi.ProcessInstanceID,
		"target", mpi.Target.ID,
		"removed_instances", x.stats.RemovedInstances,
		"created_scopes", x.stats.CreatedScopes)
	return x.stats, nil
}

// removeUnmapped is Phase A. Nodes are visited children first. A node
// without a target is removed with its execution subtree after its children
// were detached; the children are then reattached under the node's parent.
// A migrating node only loses its removing dependents.
func (x *Executor) removeUnmapped(mpi *MigratingProcessInstance) error {
	for _, n := range mpi.PostOrder() {
		if n.ParentID == "" || n.Migrates() {
			x.deleteRemoving(mpi, n)
			continue
		}
		if err := x.removeInstance(mpi, n); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) removeInstance(mpi *MigratingProcessInstance, n *MigratingInstance) error {
	parent := mpi.Parent(n)
	children := mpi.Children(n)

	for _, c := range children {
		ce := x.rt.Execution(c.ExecutionID)
		if ce == nil {
			return engineError(mpi.ProcessInstanceID, c.ID, "execution %s not found", c.ExecutionID)
		}
		ce.ParentID = ""
	}

	if err := x.rt.RemoveExecution(n.ExecutionID); err != nil {
		return engineError(mpi.ProcessInstanceID, n.ID, "remove execution: %v", err)
	}
	x.stats.Removed += len(n.Removing)
	x.stats.RemovedInstances++
	slog.Info("removed instance without target",
		"process_instance", mpi.ProcessInstanceID,
		"activity_instance", n.ID,
		"activity", n.ActivityID,
		"phase", "A",
		"reattached", len(children))

	for _, c := range children {
		if err := x.reattach(mpi, parent, c); err != nil {
			return err
		}
		c.ParentID = parent.ID
	}
	mpi.replaceChild(parent, n.ID, n.Children)
	mpi.remove(n)
	return nil
}

// reattach moves the execution of c under parent. Event scopes attach
// directly, everything else through createAttachable.
func (x *Executor) reattach(mpi *MigratingProcessInstance, parent, c *MigratingInstance) error {
	if parent.Kind == KindTransition {
		return engineError(mpi.ProcessInstanceID, c.ID, "cannot attach to transition instance %s", parent.ID)
	}
	if !parent.SourceScope.IsScope() {
		return engineError(mpi.ProcessInstanceID, c.ID, "cannot attach to non-scope activity %s", parent.SourceScope.ID)
	}
	ce := x.rt.Execution(c.ExecutionID)
	if c.Kind == KindEventScope {
		ce.ParentID = parent.ExecutionID
		return nil
	}
	attachTo, err := x.createAttachable(mpi, parent.ExecutionID)
	if err != nil {
		return err
	}
	ce.ParentID = attachTo
	return nil
}

// createAttachable returns the execution a new child of executionID should
// hang from. An execution that already has children or is itself active
// gets a fresh concurrent child; otherwise it is reused. A non-concurrent
// child already present is moved into a concurrent container of its own
// first, so a scope never mixes both shapes.
func (x *Executor) createAttachable(mpi *MigratingProcessInstance, executionID string) (string, error) {
	e := x.rt.Execution(executionID)
	if e == nil {
		return "", engineError(mpi.ProcessInstanceID, "", "execution %s not found", executionID)
	}
	children := x.rt.NonEventScopeChildren(executionID)
	if len(children) == 0 && !e.IsActive {
		return executionID, nil
	}
	for _, child := range children {
		if !child.IsConcurrent {
			child.ParentID = x.fork(mpi, e).ID
		}
	}
	return x.fork(mpi, e).ID, nil
}

// fork adds a concurrent container below e.
func (x *Executor) fork(mpi *MigratingProcessInstance, e *runtime.Execution) *runtime.Execution {
	c := &runtime.Execution{
		ID:                  x.ids.Generate(),
		ProcessInstanceID:   mpi.ProcessInstanceID,
		ParentID:            e.ID,
		ProcessDefinitionID: e.ProcessDefinitionID,
		IsConcurrent:        true,
	}
	x.rt.AddExecution(c)
	x.forked = append(x.forked, c.ID)
	return c
}

// migrateTree is Phase B.
func (x *Executor) migrateTree(mpi *MigratingProcessInstance) error {
	root := mpi.Root()
	branch := NewExecutionBranch()
	branch.Visit(root.ID)
	branch.Register(root.TargetScope.ID, root.ExecutionID)

	if err := x.migrateState(mpi, root); err != nil {
		return err
	}
	children := branch.Copy()
	for _, c := range mpi.Children(root) {
		if err := x.migrateInstance(mpi, c, children); err != nil {
			return err
		}
	}
	return nil
}

// migrateInstance migrates n inside branch. Scopes created for n are
// registered in branch and so shared with n's siblings. n's own scope is
// registered only in the copy handed to its children.
func (x *Executor) migrateInstance(mpi *MigratingProcessInstance, n *MigratingInstance, branch *ExecutionBranch) error {
	if branch.Visit(n.ID) {
		return engineError(mpi.ProcessInstanceID, n.ID, "instance visited twice")
	}
	parent := mpi.Parent(n)
	if parent.Kind == KindTransition {
		return engineError(mpi.ProcessInstanceID, n.ID, "cannot attach to transition instance %s", parent.ID)
	}

	if flowScope := n.TargetScope.FlowScope; flowScope != parent.TargetScope {
		if n.Kind != KindActivity {
			return engineError(mpi.ProcessInstanceID, n.ID, "%s instance cannot move from flow scope %s to %s",
				n.Kind, parent.TargetScope, flowScope)
		}
		if err := x.createScopes(mpi, n, flowScope, branch); err != nil {
			return err
		}
	}

	if err := x.migrateState(mpi, n); err != nil {
		return err
	}

	children := branch.Copy()
	if n.Kind == KindActivity && n.TargetScope.IsScope() {
		children.Register(n.TargetScope.ID, n.ExecutionID)
	}
	for _, c := range mpi.Children(n) {
		if err := x.migrateInstance(mpi, c, children); err != nil {
			return err
		}
	}
	return nil
}

// createScopes detaches n's execution, instantiates every scope between the
// closest scope already present in branch and flowScope, and reattaches n
// below the deepest one.
func (x *Executor) createScopes(mpi *MigratingProcessInstance, n *MigratingInstance, flowScope *definition.Activity, branch *ExecutionBranch) error {
	exec := x.rt.Execution(n.ExecutionID)
	if exec == nil {
		return engineError(mpi.ProcessInstanceID, n.ID, "execution %s not found", n.ExecutionID)
	}
	oldParent := exec.ParentID
	exec.ParentID = ""
	x.rt.PruneContainer(oldParent)

	var missing []*definition.Activity
	present := flowScope
	for ; present != nil; present = present.FlowScope {
		if _, ok := branch.Execution(present.ID); ok {
			break
		}
		missing = append(missing, present)
	}
	if present == nil {
		return engineError(mpi.ProcessInstanceID, n.ID, "no execution available for any flow scope of %s", n.TargetScope.ID)
	}
	slices.Reverse(missing)

	current, _ := branch.Execution(present.ID)
	for i, scope := range missing {
		if !scope.IsScope() {
			return engineError(mpi.ProcessInstanceID, n.ID, "cannot attach to non-scope activity %s", scope.ID)
		}
		parentID := current
		if i == 0 {
			var err error
			if parentID, err = x.createAttachable(mpi, current); err != nil {
				return err
			}
		}
		e := &runtime.Execution{
			ID:                  x.ids.Generate(),
			ProcessInstanceID:   mpi.ProcessInstanceID,
			ParentID:            parentID,
			ProcessDefinitionID: mpi.Target.ID,
			ActivityID:          scope.ID,
			ActivityInstanceID:  x.ids.Generate(),
			IsScope:             true,
		}
		x.rt.AddExecution(e)
		for _, decl := range scope.DeclarationsOf(definition.EventTimer, definition.EventMessage, definition.EventSignal) {
			if err := x.createEmerging(mpi, e.ID, decl); err != nil {
				return err
			}
		}
		branch.Register(scope.ID, e.ID)
		current = e.ID
		x.stats.CreatedScopes++
		slog.Info("created scope execution",
			"process_instance", mpi.ProcessInstanceID,
			"activity_instance", n.ID,
			"scope", scope.ID,
			"execution", e.ID,
			"phase", "B")
	}

	attachTo, err := x.createAttachable(mpi, current)
	if err != nil {
		return err
	}
	exec.ParentID = attachTo
	return nil
}

// migrateState rebinds n's execution and its dependents to the target.
func (x *Executor) migrateState(mpi *MigratingProcessInstance, n *MigratingInstance) error {
	e := x.rt.Execution(n.ExecutionID)
	if e == nil {
		return engineError(mpi.ProcessInstanceID, n.ID, "execution %s not found", n.ExecutionID)
	}
	e.ActivityID = n.TargetScope.ID
	e.ProcessDefinitionID = mpi.Target.ID
	if n.Kind == KindActivity {
		e.IsScope = n.TargetScope.IsScope()
	}

	now := x.clock.Now()
	for _, d := range n.Migrating {
		if err := x.migrateDependent(mpi, n, d, now); err != nil {
			return err
		}
	}
	for _, d := range n.Emerging {
		if err := x.createEmerging(mpi, n.ExecutionID, d.Declaration); err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) migrateDependent(mpi *MigratingProcessInstance, n *MigratingInstance, d *Dependent, now time.Time) error {
	switch d.Kind {
	case DependentJob:
		j := d.Job
		j.ActivityID = d.TargetActivityID
		j.ProcessDefinitionID = mpi.Target.ID
		if d.Declaration == nil {
			j.JobDefinitionID = AsyncJobDefinitionID(d.TargetActivityID)
			break
		}
		j.JobDefinitionID = d.Declaration.JobDefinitionID()
		if d.UpdateTrigger {
			dur, err := d.Declaration.Duration()
			if err != nil {
				return engineError(mpi.ProcessInstanceID, n.ID, "update timer %s: %v", j.ID, err)
			}
			j.Config = d.Declaration.TimerExpression
			j.DueDate = now.Add(dur)
		}
	case DependentSubscription:
		es := d.Subscription
		es.ActivityID = d.TargetActivityID
		if d.Declaration != nil && d.UpdateTrigger {
			es.EventName = d.Declaration.EventName
		}
	case DependentTask:
		d.Task.TaskDefinitionKey = d.TargetActivityID
		d.Task.ProcessDefinitionID = mpi.Target.ID
	case DependentVariable:
		// Variables stay on their execution, which moves with n.
	case DependentIncident:
		d.Incident.ActivityID = d.TargetActivityID
		d.Incident.ProcessDefinitionID = mpi.Target.ID
	}
	x.stats.Migrated++
	slog.Debug("migrated dependent",
		"process_instance", mpi.ProcessInstanceID,
		"activity_instance", n.ID,
		"kind", string(d.Kind),
		"id", d.ID(),
		"target", d.TargetActivityID)
	return nil
}

// createEmerging materializes a target declaration on an execution: a
// timer job due relative to now, or a message or signal subscription.
func (x *Executor) createEmerging(mpi *MigratingProcessInstance, executionID string, decl *definition.EventDeclaration) error {
	switch decl.Kind {
	case definition.EventTimer:
		dur, err := decl.Duration()
		if err != nil {
			return engineError(mpi.ProcessInstanceID, "", "create timer %s: %v", decl.ActivityID, err)
		}
		x.rt.AddJob(&runtime.Job{
			ID:                  x.ids.Generate(),
			Type:                runtime.JobTimer,
			ExecutionID:         executionID,
			ProcessInstanceID:   mpi.ProcessInstanceID,
			ProcessDefinitionID: mpi.Target.ID,
			ActivityID:          decl.ActivityID,
			JobDefinitionID:     decl.JobDefinitionID(),
			Config:              decl.TimerExpression,
			DueDate:             x.clock.Now().Add(dur),
			Retries:             DefaultJobRetries,
		})
	case definition.EventMessage, definition.EventSignal:
		typ := runtime.SubscriptionMessage
		if decl.Kind == definition.EventSignal {
			typ = runtime.SubscriptionSignal
		}
		x.rt.AddEventSubscription(&runtime.EventSubscription{
			ID:                x.ids.Generate(),
			Type:              typ,
			EventName:         decl.EventName,
			ExecutionID:       executionID,
			ProcessInstanceID: mpi.ProcessInstanceID,
			ActivityID:        decl.ActivityID,
		})
	default:
		return engineError(mpi.ProcessInstanceID, "", "cannot create %s declaration %s", decl.Kind, decl.ActivityID)
	}
	x.stats.Emerged++
	slog.Debug("created emerging dependent",
		"process_instance", mpi.ProcessInstanceID,
		"execution", executionID,
		"kind", string(decl.Kind),
		"activity", decl.ActivityID)
	return nil
}

// deleteRemoving deletes the dependents of n tagged for removal.
func (x *Executor) deleteRemoving(mpi *MigratingProcessInstance, n *MigratingInstance) {
	for _, d := range n.Removing {
		switch d.Kind {
		case DependentJob:
			x.rt.DeleteJob(d.Job.ID)
		case DependentSubscription:
			x.rt.DeleteEventSubscription(d.Subscription.ID)
		case DependentTask:
			x.rt.DeleteTask(d.Task.ID)
		case DependentVariable:
			x.rt.DeleteVariable(d.Variable.ID)
		case DependentIncident:
			x.rt.DeleteIncident(d.Incident.ID)
		}
		x.stats.Removed++
		slog.Debug("removed dependent",
			"process_instance", mpi.ProcessInstanceID,
			"activity_instance", n.ID,
			"kind", string(d.Kind),
			"id", d.ID())
	}
}

// collapseForked folds a concurrent execution created during this
// migration into its parent when it ended up as the parent's only child.
func (x *Executor) collapseForked(mpi *MigratingProcessInstance) error {
	for _, id := range x.forked {
		c := x.rt.Execution(id)
		if c == nil {
			continue
		}
		siblings := x.rt.NonEventScopeChildren(c.ParentID)
		if len(siblings) != 1 {
			continue
		}
		for _, child := range x.rt.Children(id) {
			child.ParentID = c.ParentID
		}
		if err := x.rt.RemoveExecution(id); err != nil {
			return engineError(mpi.ProcessInstanceID, "", "collapse execution %s: %v", id, err)
		}
	}
	return nil
}

// bindDefinition points every record of the instance at the target
// definition.
func (x *Executor) bindDefinition(mpi *MigratingProcessInstance) {
	pi := mpi.ProcessInstanceID
	for _, e := range x.rt.Executions(pi) {
		e.ProcessDefinitionID = mpi.Target.ID
	}
	for _, j := range x.rt.Jobs(pi) {
		j.ProcessDefinitionID = mpi.Target.ID
	}
	for _, t := range x.rt.Tasks(pi) {
		t.ProcessDefinitionID = mpi.Target.ID
	}
	for _, in := range x.rt.Incidents(pi) {
		in.ProcessDefinitionID = mpi.Target.ID
	}
}

// DefaultJobRetries is the retry budget of jobs created during migration.
const DefaultJobRetries = 3

// AsyncJobDefinitionID identifies the job definition of an asynchronous
// continuation on activityID.
func AsyncJobDefinitionID(activityID string) string {
	return fmt.Sprintf("async:%s", activityID)
}
