package migration

import (
	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/runtime"
)

// ExecutionRepository reads and restructures the execution tree.
type ExecutionRepository interface {
	Execution(id string) *runtime.Execution
	Executions(processInstanceID string) []*runtime.Execution
	Children(id string) []*runtime.Execution
	NonEventScopeChildren(id string) []*runtime.Execution
	AddExecution(e *runtime.Execution)
	RemoveExecution(id string) error
	PruneContainer(id string)
}

// ActivityInstanceProvider materializes the activity-instance tree.
type ActivityInstanceProvider interface {
	ActivityInstanceTree(processInstanceID string) (*runtime.ActivityInstance, error)
}

// EntityRepository reads, creates and deletes dependent entities.
type EntityRepository interface {
	Jobs(processInstanceID string) []*runtime.Job
	EventSubscriptions(processInstanceID string) []*runtime.EventSubscription
	Tasks(processInstanceID string) []*runtime.Task
	Variables(processInstanceID string) []*runtime.Variable
	Incidents(processInstanceID string) []*runtime.Incident

	AddJob(j *runtime.Job)
	AddEventSubscription(es *runtime.EventSubscription)

	DeleteJob(id string)
	DeleteEventSubscription(id string)
	DeleteTask(id string)
	DeleteVariable(id string)
	DeleteIncident(id string)
}

// Runtime is everything a migration reads and mutates. runtime.State
// implements it.
type Runtime interface {
	ExecutionRepository
	ActivityInstanceProvider
	EntityRepository
}

// DefinitionResolver resolves deployed definitions by id.
// definition.Repository implements it.
type DefinitionResolver interface {
	Get(id string) (*definition.ProcessDefinition, error)
}

var (
	_ Runtime            = (*runtime.State)(nil)
	_ DefinitionResolver = (*definition.Repository)(nil)
)
