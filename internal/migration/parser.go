package migration

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/plan"
	"github.com/roach88/flowmig/internal/runtime"
)

// Parser turns a running process instance and a plan into a
// MigratingProcessInstance plus the report of everything that prevents the
// migration.
type Parser struct {
	Definitions DefinitionResolver
	Validators  []InstanceValidator
}

// NewParser creates a parser. Without validators the default set is used.
func NewParser(defs DefinitionResolver, validators ...InstanceValidator) *Parser {
	if len(validators) == 0 {
		validators = DefaultInstanceValidators()
	}
	return &Parser{Definitions: defs, Validators: validators}
}

// parseContext is the state of one Parse call.
type parseContext struct {
	plan   *plan.Plan
	source *definition.ProcessDefinition
	target *definition.ProcessDefinition
	mpi    *MigratingProcessInstance
	report *Report

	jobs          *pool[runtime.Job]
	subscriptions *pool[runtime.EventSubscription]
	tasks         *pool[runtime.Task]
	variables     *pool[runtime.Variable]
	incidents     *pool[runtime.Incident]

	jobOwners    map[string]*MigratingInstance
	jobDecisions map[string]*Dependent
	claimed      map[string]map[*definition.EventDeclaration]bool
}

// Parse reads one process instance from rt and resolves every node against
// the plan. Precondition failures are returned as *MigrationError before
// any node is created. Everything else is collected into the report.
func (p *Parser) Parse(rt Runtime, pl *plan.Plan, processInstanceID string) (*MigratingProcessInstance, *Report, error) {
	if pl == nil {
		return nil, nil, newMigrationError(ErrCodeMissingPlan, processInstanceID, "migration plan is required")
	}
	pe := rt.Execution(processInstanceID)
	if pe == nil || !pe.IsProcessInstance() {
		return nil, nil, newMigrationError(ErrCodeInstanceNotFound, processInstanceID,
			"process instance %s does not exist", processInstanceID)
	}
	if pe.ProcessDefinitionID != pl.SourceDefinitionID {
		return nil, nil, newMigrationError(ErrCodeDefinitionMismatch, processInstanceID,
			"process instance runs on definition %s, plan migrates from %s", pe.ProcessDefinitionID, pl.SourceDefinitionID)
	}
	source, err := p.Definitions.Get(pl.SourceDefinitionID)
	if err != nil {
		return nil, nil, newMigrationError(ErrCodeDefinitionMismatch, processInstanceID, "source definition: %v", err)
	}
	target, err := p.Definitions.Get(pl.TargetDefinitionID)
	if err != nil {
		return nil, nil, newMigrationError(ErrCodeDefinitionMismatch, processInstanceID, "target definition: %v", err)
	}

	tree, err := rt.ActivityInstanceTree(processInstanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("parse process instance %s: %w", processInstanceID, err)
	}
	eventScopes := eventScopeExecutions(rt, processInstanceID)
	if err := checkSourceActivities(processInstanceID, tree, eventScopes, source); err != nil {
		return nil, nil, err
	}

	slog.Debug("parsing process instance",
		"process_instance", processInstanceID,
		"source", source.ID,
		"target", target.ID,
		"instructions", len(pl.Instructions))

	c := &parseContext{
		plan:          pl,
		source:        source,
		target:        target,
		mpi:           newMigratingProcessInstance(processInstanceID, source, target, pl),
		report:        NewReport(processInstanceID),
		jobs:          newPool(rt.Jobs(processInstanceID), func(j *runtime.Job) string { return j.ID }),
		subscriptions: newPool(rt.EventSubscriptions(processInstanceID), func(es *runtime.EventSubscription) string { return es.ID }),
		tasks:         newPool(rt.Tasks(processInstanceID), func(t *runtime.Task) string { return t.ID }),
		variables:     newPool(rt.Variables(processInstanceID), func(v *runtime.Variable) string { return v.ID }),
		incidents:     newPool(rt.Incidents(processInstanceID), func(i *runtime.Incident) string { return i.ID }),
		jobOwners:     make(map[string]*MigratingInstance),
		jobDecisions:  make(map[string]*Dependent),
		claimed:       make(map[string]map[*definition.EventDeclaration]bool),
	}

	c.parseActivityInstance(tree, "")
	c.parseCompensation(rt, eventScopes)
	c.handleIncidents()
	c.checkCompleteness()

	for _, n := range c.mpi.Nodes() {
		ir := c.report.ForInstance(n)
		for _, v := range p.Validators {
			v.Validate(n, c.mpi, ir)
		}
	}

	slog.Debug("parsed process instance",
		"process_instance", processInstanceID,
		"nodes", len(c.mpi.nodes),
		"failures", c.report.FailureCount())
	return c.mpi, c.report, nil
}

// parseActivityInstance creates the node for ai under parentID, runs the
// dependent handlers, then descends: parents are always parsed before
// their children.
func (c *parseContext) parseActivityInstance(ai *runtime.ActivityInstance, parentID string) {
	n := &MigratingInstance{
		ID:          ai.ID,
		Kind:        KindActivity,
		ActivityID:  ai.ActivityID,
		ExecutionID: ai.ExecutionID,
		ParentID:    parentID,
		SourceScope: c.source.FindActivity(ai.ActivityID),
	}
	if parentID == "" {
		n.SourceScope = c.source.Root
		n.TargetScope = c.target.Root
	} else {
		c.resolveTarget(n)
		if n.Instruction == nil {
			c.resolveContainerTarget(n, ai)
		}
	}
	c.mpi.add(n)
	c.handleDependents(n)

	for _, ti := range ai.TransitionInstances {
		c.parseTransitionInstance(ti, n.ID)
	}
	for _, child := range ai.Children {
		c.parseActivityInstance(child, n.ID)
	}
}

// parseTransitionInstance creates a node for ti only if an asynchronous
// continuation job backs it.
func (c *parseContext) parseTransitionInstance(ti *runtime.TransitionInstance, parentID string) {
	async := c.jobs.owned(func(j *runtime.Job) bool {
		return j.ExecutionID == ti.ExecutionID && j.Type == runtime.JobAsyncContinuation
	})
	if len(async) == 0 {
		slog.Debug("skipping transition instance without async continuation",
			"process_instance", c.mpi.ProcessInstanceID,
			"transition_instance", ti.ID)
		return
	}

	n := &MigratingInstance{
		ID:          ti.ID,
		Kind:        KindTransition,
		ActivityID:  ti.ActivityID,
		ExecutionID: ti.ExecutionID,
		ParentID:    parentID,
		SourceScope: c.source.FindActivity(ti.ActivityID),
	}
	c.resolveTarget(n)
	c.mpi.add(n)
	c.handleDependents(n)
}

// parseCompensation walks top-down over compensation state: first the
// subscriptions of every node already parsed, then every event-scope
// execution, parents first, so an event scope is resolved only after the
// scope that owns it.
func (c *parseContext) parseCompensation(rt Runtime, eventScopes []*runtime.Execution) {
	for _, n := range c.mpi.Nodes() {
		c.handleCompensation(n)
	}

	for _, e := range eventScopes {
		parent := c.owningNode(rt, e.ParentID)
		if parent == nil {
			continue
		}
		n := &MigratingInstance{
			ID:          e.ID,
			Kind:        KindEventScope,
			ActivityID:  e.ActivityID,
			ExecutionID: e.ID,
			ParentID:    parent.ID,
			SourceScope: c.source.FindActivity(e.ActivityID),
		}
		c.resolveTarget(n)
		c.mpi.add(n)
		c.handleCompensation(n)
		c.handleVariables(n)
	}
}

// owningNode returns the node of the nearest execution at or above
// executionID that represents one.
func (c *parseContext) owningNode(rt Runtime, executionID string) *MigratingInstance {
	for id := executionID; id != ""; {
		if n := c.mpi.NodeByExecution(id); n != nil {
			return n
		}
		e := rt.Execution(id)
		if e == nil {
			return nil
		}
		id = e.ParentID
	}
	return nil
}

// resolveTarget applies the first instruction for n's activity.
func (c *parseContext) resolveTarget(n *MigratingInstance) {
	in, ok := c.plan.InstructionFor(n.ActivityID)
	if !ok {
		return
	}
	n.Instruction = &in
	n.TargetScope = c.target.FindActivity(in.TargetActivityID)
	if n.TargetScope == nil {
		c.report.ForInstance(n).AddFailure("target activity '%s' does not exist in process definition '%s'",
			in.TargetActivityID, c.target.ID)
	}
}

// resolveContainerTarget keeps an unmapped container in place. The target
// must hold a container with the same id and behavior directly below the
// parent's target, and every mapped instance below ai must be mapped into
// it. Containers without any mapped descendant are still removed.
func (c *parseContext) resolveContainerTarget(n *MigratingInstance, ai *runtime.ActivityInstance) {
	if n.SourceScope == nil || !n.SourceScope.Behavior.IsContainer() {
		return
	}
	parent := c.mpi.Node(n.ParentID)
	if parent == nil || !parent.Migrates() {
		return
	}
	counterpart := c.target.FindActivity(n.ActivityID)
	if counterpart == nil || counterpart.Behavior != n.SourceScope.Behavior || counterpart.FlowScope != parent.TargetScope {
		return
	}

	mapped, inside := 0, true
	check := func(activityID string) {
		in, ok := c.plan.InstructionFor(activityID)
		if !ok {
			return
		}
		mapped++
		if !counterpart.IsAncestorOf(c.target.FindActivity(in.TargetActivityID)) {
			inside = false
		}
	}
	ai.Walk(func(d *runtime.ActivityInstance) {
		if d != ai {
			check(d.ActivityID)
		}
		for _, ti := range d.TransitionInstances {
			check(ti.ActivityID)
		}
	})
	if mapped == 0 || !inside {
		return
	}

	n.TargetScope = counterpart
	slog.Debug("kept container without instruction",
		"process_instance", c.mpi.ProcessInstanceID,
		"activity_instance", n.ID,
		"activity", n.ActivityID)
}

// checkCompleteness reports every fetched entity no handler consumed.
func (c *parseContext) checkCompleteness() {
	leftovers := []struct {
		kind string
		ids  []string
	}{
		{"jobs", c.jobs.remaining()},
		{"event subscriptions", c.subscriptions.remaining()},
		{"tasks", c.tasks.remaining()},
		{"variables", c.variables.remaining()},
		{"incidents", c.incidents.remaining()},
	}
	for _, l := range leftovers {
		if len(l.ids) > 0 {
			c.report.AddFailure("process instance contains not migrated %s: [%s]", l.kind, strings.Join(l.ids, ", "))
		}
	}
}

// checkSourceActivities fails fast if any node of the running instance
// names an activity its source definition does not contain.
func checkSourceActivities(processInstanceID string, tree *runtime.ActivityInstance, eventScopes []*runtime.Execution, source *definition.ProcessDefinition) error {
	unknown := func(kind, id, activityID string) error {
		return newMigrationError(ErrCodeUnknownSourceActivity, processInstanceID,
			"%s instance %s references activity %s which is not part of definition %s", kind, id, activityID, source.ID)
	}

	var err error
	tree.Walk(func(ai *runtime.ActivityInstance) {
		if err != nil {
			return
		}
		if source.FindActivity(ai.ActivityID) == nil {
			err = unknown("activity", ai.ID, ai.ActivityID)
			return
		}
		for _, ti := range ai.TransitionInstances {
			if source.FindActivity(ti.ActivityID) == nil {
				err = unknown("transition", ti.ID, ti.ActivityID)
				return
			}
		}
	})
	if err != nil {
		return err
	}
	for _, e := range eventScopes {
		if source.FindActivity(e.ActivityID) == nil {
			return unknown("event scope", e.ID, e.ActivityID)
		}
	}
	return nil
}

// eventScopeExecutions returns the event-scope executions of an instance,
// shallowest first.
func eventScopeExecutions(rt Runtime, processInstanceID string) []*runtime.Execution {
	var out []*runtime.Execution
	for _, e := range rt.Executions(processInstanceID) {
		if e.IsEventScope {
			out = append(out, e)
		}
	}
	depth := func(e *runtime.Execution) int {
		d := 0
		for p := rt.Execution(e.ParentID); p != nil; p = rt.Execution(p.ParentID) {
			d++
		}
		return d
	}
	sort.SliceStable(out, func(i, j int) bool { return depth(out[i]) < depth(out[j]) })
	return out
}
