package migration

import (
	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/runtime"
)

// DependentKind names the runtime entity a Dependent wraps.
type DependentKind string

const (
	DependentJob          DependentKind = "job"
	DependentSubscription DependentKind = "event subscription"
	DependentTask         DependentKind = "task"
	DependentVariable     DependentKind = "variable"
	DependentIncident     DependentKind = "incident"
)

// Decision is what happens to a dependent entity.
type Decision string

const (
	// Migrate keeps the entity and rebinds it to the target.
	Migrate Decision = "migrate"
	// Remove deletes the entity.
	Remove Decision = "remove"
	// Emerge creates the entity from a target declaration.
	Emerge Decision = "emerge"
)

// Dependent is one decision about one entity attached to a migrating
// instance. Exactly one of the payload pointers matching Kind is set; an
// emerging dependent has no payload and carries only its Declaration.
type Dependent struct {
	Kind     DependentKind
	Decision Decision

	Job          *runtime.Job
	Subscription *runtime.EventSubscription
	Task         *runtime.Task
	Variable     *runtime.Variable
	Incident     *runtime.Incident

	// Declaration is the target declaration a migrating or emerging job or
	// subscription is bound to.
	Declaration *definition.EventDeclaration

	// TargetActivityID is the activity the entity is rebound to.
	TargetActivityID string

	// UpdateTrigger refreshes trigger configuration from Declaration.
	UpdateTrigger bool
}

// ID returns the id of the wrapped entity, or "" for an emerging dependent.
func (d *Dependent) ID() string {
	switch d.Kind {
	case DependentJob:
		if d.Job != nil {
			return d.Job.ID
		}
	case DependentSubscription:
		if d.Subscription != nil {
			return d.Subscription.ID
		}
	case DependentTask:
		return d.Task.ID
	case DependentVariable:
		return d.Variable.ID
	case DependentIncident:
		return d.Incident.ID
	}
	return ""
}

func (d *Dependent) String() string {
	if d.Decision == Emerge {
		return string(d.Decision) + " " + string(d.Kind) + " for " + d.Declaration.ActivityID
	}
	return string(d.Decision) + " " + string(d.Kind) + " " + d.ID()
}
