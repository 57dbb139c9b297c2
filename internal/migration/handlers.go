package migration

import (
	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/runtime"
)

// pool tracks fetched entities of one kind until a handler consumes them.
type pool[T any] struct {
	items    []*T
	id       func(*T) string
	consumed map[string]bool
}

func newPool[T any](items []*T, id func(*T) string) *pool[T] {
	return &pool[T]{items: items, id: id, consumed: make(map[string]bool)}
}

// owned returns the unconsumed entities matching keep.
func (p *pool[T]) owned(keep func(*T) bool) []*T {
	var out []*T
	for _, it := range p.items {
		if !p.consumed[p.id(it)] && keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func (p *pool[T]) consume(it *T) {
	p.consumed[p.id(it)] = true
}

// remaining returns the ids nothing consumed, in fetch order.
func (p *pool[T]) remaining() []string {
	var out []string
	for _, it := range p.items {
		if id := p.id(it); !p.consumed[id] {
			out = append(out, id)
		}
	}
	return out
}

// matchDeclaration decides an event-triggered entity (timer job, message or
// signal subscription) owned by n. The trigger activity is mapped through
// its own instruction when it has one, else through the owner when the
// owner itself is the trigger, else kept. A declaration already claimed by
// another entity of n is not matched twice.
func (c *parseContext) matchDeclaration(n *MigratingInstance, kind definition.EventKind, triggerID string) *Dependent {
	if !n.Migrates() {
		return &Dependent{Decision: Remove}
	}

	mapped, update := triggerID, n.UpdateEventTrigger()
	if in, ok := c.plan.InstructionFor(triggerID); ok {
		mapped, update = in.TargetActivityID, in.UpdateEventTrigger
	} else if triggerID == n.SourceScope.ID {
		mapped = n.TargetScope.ID
	}

	decl := n.TargetScope.Declaration(kind, mapped)
	if decl == nil || c.claimed[n.ID][decl] {
		return &Dependent{Decision: Remove}
	}
	c.claim(n, decl)
	return &Dependent{
		Decision:         Migrate,
		Declaration:      decl,
		TargetActivityID: mapped,
		UpdateTrigger:    update,
	}
}

func (c *parseContext) claim(n *MigratingInstance, decl *definition.EventDeclaration) {
	if c.claimed[n.ID] == nil {
		c.claimed[n.ID] = make(map[*definition.EventDeclaration]bool)
	}
	c.claimed[n.ID][decl] = true
}

// handleJobs decides the jobs owned by n's execution. Timer jobs belong to
// scopes, async continuations to transition instances. Any other job is
// left for the completeness check.
func (c *parseContext) handleJobs(n *MigratingInstance) {
	for _, j := range c.jobs.owned(func(j *runtime.Job) bool { return j.ExecutionID == n.ExecutionID }) {
		var d *Dependent
		switch {
		case j.Type == runtime.JobTimer && n.Kind != KindTransition:
			d = c.matchDeclaration(n, definition.EventTimer, j.ActivityID)
		case j.Type == runtime.JobAsyncContinuation && n.Kind == KindTransition:
			d = &Dependent{Decision: Remove}
			if n.Migrates() {
				d = &Dependent{Decision: Migrate, TargetActivityID: n.TargetScope.ID}
			}
		default:
			continue
		}
		d.Kind = DependentJob
		d.Job = j
		c.jobs.consume(j)
		c.jobOwners[j.ID] = n
		c.jobDecisions[j.ID] = d
		n.addDependent(d)
	}
}

// handleSubscriptions decides the message and signal subscriptions owned by
// n's execution. Compensation subscriptions are left to the compensation
// walk.
func (c *parseContext) handleSubscriptions(n *MigratingInstance) {
	for _, es := range c.subscriptions.owned(func(es *runtime.EventSubscription) bool {
		return es.ExecutionID == n.ExecutionID && es.Type != runtime.SubscriptionCompensate
	}) {
		var kind definition.EventKind
		switch es.Type {
		case runtime.SubscriptionMessage:
			kind = definition.EventMessage
		case runtime.SubscriptionSignal:
			kind = definition.EventSignal
		default:
			continue
		}
		d := c.matchDeclaration(n, kind, es.ActivityID)
		d.Kind = DependentSubscription
		d.Subscription = es
		c.subscriptions.consume(es)
		n.addDependent(d)
	}
}

// handleCompensation decides the compensation subscriptions owned by n's
// execution. A subscription migrates when its owner migrates and its
// compensated activity is mapped onto an existing target activity.
func (c *parseContext) handleCompensation(n *MigratingInstance) {
	for _, es := range c.subscriptions.owned(func(es *runtime.EventSubscription) bool {
		return es.ExecutionID == n.ExecutionID && es.Type == runtime.SubscriptionCompensate
	}) {
		d := &Dependent{Kind: DependentSubscription, Decision: Remove, Subscription: es}
		if in, ok := c.plan.InstructionFor(es.ActivityID); ok && n.Migrates() && c.target.FindActivity(in.TargetActivityID) != nil {
			d.Decision = Migrate
			d.TargetActivityID = in.TargetActivityID
		}
		c.subscriptions.consume(es)
		n.addDependent(d)
	}
}

// handleTasks decides the tasks owned by n's execution: they follow their
// owner.
func (c *parseContext) handleTasks(n *MigratingInstance) {
	for _, t := range c.tasks.owned(func(t *runtime.Task) bool { return t.ExecutionID == n.ExecutionID }) {
		d := &Dependent{Kind: DependentTask, Decision: Remove, Task: t}
		if n.Migrates() {
			d.Decision = Migrate
			d.TargetActivityID = n.TargetScope.ID
		}
		c.tasks.consume(t)
		n.addDependent(d)
	}
}

// handleVariables decides the variables owned by n's execution: they follow
// their owner.
func (c *parseContext) handleVariables(n *MigratingInstance) {
	for _, v := range c.variables.owned(func(v *runtime.Variable) bool { return v.ExecutionID == n.ExecutionID }) {
		d := &Dependent{Kind: DependentVariable, Decision: Remove, Variable: v}
		if n.Migrates() {
			d.Decision = Migrate
		}
		c.variables.consume(v)
		n.addDependent(d)
	}
}

// handleEmerging adds a dependent for every target declaration of n that no
// running entity was matched to.
func (c *parseContext) handleEmerging(n *MigratingInstance) {
	if !n.Migrates() || n.Kind != KindActivity {
		return
	}
	for _, decl := range n.TargetScope.DeclarationsOf(definition.EventTimer, definition.EventMessage, definition.EventSignal) {
		if c.claimed[n.ID][decl] {
			continue
		}
		kind := DependentSubscription
		if decl.Kind == definition.EventTimer {
			kind = DependentJob
		}
		n.addDependent(&Dependent{
			Kind:             kind,
			Decision:         Emerge,
			Declaration:      decl,
			TargetActivityID: decl.ActivityID,
		})
	}
}

// handleIncidents runs once every job is decided. An incident raised for a
// job shares the job's fate and is re-scoped to the activity the job is
// rebound to. An incident without a job follows the node owning its
// execution.
func (c *parseContext) handleIncidents() {
	for _, in := range c.incidents.owned(func(*runtime.Incident) bool { return true }) {
		var owner *MigratingInstance
		var target string
		if in.JobID != "" {
			jd, ok := c.jobDecisions[in.JobID]
			if !ok {
				continue
			}
			owner = c.jobOwners[in.JobID]
			if jd.Decision == Migrate {
				target = jd.TargetActivityID
			}
		} else {
			owner = c.mpi.NodeByExecution(in.ExecutionID)
			if owner == nil {
				continue
			}
			if owner.Migrates() {
				target = owner.TargetScope.ID
			}
		}

		d := &Dependent{Kind: DependentIncident, Decision: Remove, Incident: in}
		if target != "" {
			d.Decision = Migrate
			d.TargetActivityID = target
		}
		c.incidents.consume(in)
		owner.addDependent(d)
	}
}

// handleDependents runs the per-node handlers in order.
func (c *parseContext) handleDependents(n *MigratingInstance) {
	c.handleJobs(n)
	c.handleSubscriptions(n)
	c.handleTasks(n)
	c.handleVariables(n)
	c.handleEmerging(n)
}
