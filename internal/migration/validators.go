package migration

// InstanceValidator inspects one node in the context of its process
// instance and records failures. Validators never return errors.
type InstanceValidator interface {
	Validate(n *MigratingInstance, mpi *MigratingProcessInstance, r *InstanceReport)
}

// InstanceValidatorFunc adapts a function to InstanceValidator.
type InstanceValidatorFunc func(n *MigratingInstance, mpi *MigratingProcessInstance, r *InstanceReport)

// Validate calls f.
func (f InstanceValidatorFunc) Validate(n *MigratingInstance, mpi *MigratingProcessInstance, r *InstanceReport) {
	f(n, mpi, r)
}

// DefaultInstanceValidators returns the validators every migration runs.
func DefaultInstanceValidators() []InstanceValidator {
	return []InstanceValidator{
		InstanceValidatorFunc(ParentScopeValidator),
		InstanceValidatorFunc(TransitionParentValidator),
		InstanceValidatorFunc(TargetAncestryValidator),
		InstanceValidatorFunc(FlowScopeValidator),
		InstanceValidatorFunc(AsyncTargetValidator),
	}
}

// ParentScopeValidator rejects a migrating node whose nearest migrating
// ancestor is mapped onto an activity that cannot hold children.
func ParentScopeValidator(n *MigratingInstance, mpi *MigratingProcessInstance, r *InstanceReport) {
	if !n.Migrates() || n.ParentID == "" {
		return
	}
	anc := mpi.NearestMigratingAncestor(n)
	if anc != nil && !anc.TargetScope.IsScope() {
		r.AddFailure("cannot become a subordinate of non-scope activity '%s'", anc.TargetScope.ID)
	}
}

// TransitionParentValidator rejects any node that would attach to a
// transition instance.
func TransitionParentValidator(n *MigratingInstance, mpi *MigratingProcessInstance, r *InstanceReport) {
	if p := mpi.Parent(n); p != nil && p.Kind == KindTransition {
		r.AddFailure("cannot attach to transition instance '%s'", p.ID)
		return
	}
	if !n.Migrates() {
		return
	}
	if anc := mpi.NearestMigratingAncestor(n); anc != nil && anc.Kind == KindTransition {
		r.AddFailure("cannot attach to transition instance '%s'", anc.ID)
	}
}

// TargetAncestryValidator requires an activity instance's target to lie
// strictly below the target of its nearest migrating ancestor, so missing
// scopes in between can be created.
func TargetAncestryValidator(n *MigratingInstance, mpi *MigratingProcessInstance, r *InstanceReport) {
	if !n.Migrates() || n.Kind != KindActivity || n.ParentID == "" {
		return
	}
	anc := mpi.NearestMigratingAncestor(n)
	if anc == nil {
		return
	}
	if !anc.TargetScope.IsAncestorOf(n.TargetScope) {
		r.AddFailure("target activity '%s' is not a descendant of '%s', the target of the closest migrating ancestor '%s'",
			n.TargetScope.ID, anc.TargetScope.ID, anc.ID)
	}
}

// FlowScopeValidator requires transition and event-scope instances, which
// never create scopes, to keep the target of their nearest migrating
// ancestor as flow scope.
func FlowScopeValidator(n *MigratingInstance, mpi *MigratingProcessInstance, r *InstanceReport) {
	if !n.Migrates() || n.Kind == KindActivity {
		return
	}
	anc := mpi.NearestMigratingAncestor(n)
	if anc == nil {
		return
	}
	if n.TargetScope.FlowScope != anc.TargetScope {
		r.AddFailure("%s instance must stay in flow scope '%s' but target activity '%s' is not a child of it",
			n.Kind, anc.TargetScope.ID, n.TargetScope.ID)
	}
}

// AsyncTargetValidator requires a migrating transition instance to target
// an asynchronous activity.
func AsyncTargetValidator(n *MigratingInstance, _ *MigratingProcessInstance, r *InstanceReport) {
	if !n.Migrates() || n.Kind != KindTransition {
		return
	}
	if !n.TargetScope.IsAsync() {
		r.AddFailure("target activity '%s' is not asynchronous", n.TargetScope.ID)
	}
}

// NoUnmappedLeafInstanceValidator rejects activity instances that have
// neither a target nor children. It is not part of the default set: by
// default such instances are removed.
func NoUnmappedLeafInstanceValidator(n *MigratingInstance, _ *MigratingProcessInstance, r *InstanceReport) {
	if n.Migrates() || n.Kind != KindActivity || len(n.Children) > 0 {
		return
	}
	r.AddFailure("there is no migration instruction for activity '%s'", n.ActivityID)
}
