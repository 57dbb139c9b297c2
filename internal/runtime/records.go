package runtime

import "time"

// Execution carries control state for one part of a process instance.
type Execution struct {
	ID                  string `json:"id" yaml:"id"`
	ProcessInstanceID   string `json:"process_instance_id" yaml:"process_instance,omitempty"`
	ParentID            string `json:"parent_id,omitempty" yaml:"parent,omitempty"`
	ProcessDefinitionID string `json:"process_definition_id" yaml:"definition,omitempty"`
	ActivityID          string `json:"activity_id,omitempty" yaml:"activity,omitempty"`
	ActivityInstanceID  string `json:"activity_instance_id,omitempty" yaml:"activity_instance,omitempty"`
	IsScope             bool   `json:"is_scope,omitempty" yaml:"scope,omitempty"`
	IsConcurrent        bool   `json:"is_concurrent,omitempty" yaml:"concurrent,omitempty"`
	IsActive            bool   `json:"is_active,omitempty" yaml:"active,omitempty"`
	IsEventScope        bool   `json:"is_event_scope,omitempty" yaml:"event_scope,omitempty"`
}

// IsProcessInstance reports whether e is the root execution of its instance.
func (e *Execution) IsProcessInstance() bool {
	return e.ParentID == "" && e.ID == e.ProcessInstanceID
}

// IsConcurrentContainer reports whether e only groups concurrent branches.
func (e *Execution) IsConcurrentContainer() bool {
	return e.IsConcurrent && e.ActivityID == "" && e.ActivityInstanceID == ""
}

// IsTransition reports whether e represents a transition instance.
func (e *Execution) IsTransition() bool {
	return e.ActivityID != "" && e.ActivityInstanceID == "" && !e.IsEventScope
}

// JobType classifies a job.
type JobType string

const (
	JobTimer             JobType = "timer"
	JobAsyncContinuation JobType = "async-continuation"
)

// Job is a unit of deferred work bound to an execution.
type Job struct {
	ID                  string    `json:"id" yaml:"id"`
	Type                JobType   `json:"type" yaml:"type"`
	ExecutionID         string    `json:"execution_id" yaml:"execution"`
	ProcessInstanceID   string    `json:"process_instance_id" yaml:"process_instance,omitempty"`
	ProcessDefinitionID string    `json:"process_definition_id" yaml:"definition,omitempty"`
	ActivityID          string    `json:"activity_id" yaml:"activity"`
	JobDefinitionID     string    `json:"job_definition_id,omitempty" yaml:"job_definition,omitempty"`
	Config              string    `json:"config,omitempty" yaml:"config,omitempty"`
	DueDate             time.Time `json:"due_date,omitempty" yaml:"due,omitempty"`
	Retries             int       `json:"retries" yaml:"retries,omitempty"`
	ExceptionMessage    string    `json:"exception_message,omitempty" yaml:"exception,omitempty"`
}

// SubscriptionType classifies an event subscription.
type SubscriptionType string

const (
	SubscriptionMessage    SubscriptionType = "message"
	SubscriptionSignal     SubscriptionType = "signal"
	SubscriptionCompensate SubscriptionType = "compensate"
)

// EventSubscription waits for a named event on behalf of an execution.
type EventSubscription struct {
	ID                string           `json:"id" yaml:"id"`
	Type              SubscriptionType `json:"type" yaml:"type"`
	EventName         string           `json:"event_name,omitempty" yaml:"name,omitempty"`
	ExecutionID       string           `json:"execution_id" yaml:"execution"`
	ProcessInstanceID string           `json:"process_instance_id" yaml:"process_instance,omitempty"`
	ActivityID        string           `json:"activity_id" yaml:"activity"`
	Configuration     string           `json:"configuration,omitempty" yaml:"configuration,omitempty"`
}

// Task is a pending user task.
type Task struct {
	ID                  string `json:"id" yaml:"id"`
	Name                string `json:"name,omitempty" yaml:"name,omitempty"`
	ExecutionID         string `json:"execution_id" yaml:"execution"`
	ProcessInstanceID   string `json:"process_instance_id" yaml:"process_instance,omitempty"`
	ProcessDefinitionID string `json:"process_definition_id" yaml:"definition,omitempty"`
	TaskDefinitionKey   string `json:"task_definition_key" yaml:"activity"`
	Assignee            string `json:"assignee,omitempty" yaml:"assignee,omitempty"`
}

// Variable is a named value local to an execution. Values are kept in their
// serialized string form.
type Variable struct {
	ID                string `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	Value             string `json:"value" yaml:"value"`
	ExecutionID       string `json:"execution_id" yaml:"execution"`
	ProcessInstanceID string `json:"process_instance_id" yaml:"process_instance,omitempty"`
}

// Incident records a failure, usually of a job.
type Incident struct {
	ID                  string `json:"id" yaml:"id"`
	Type                string `json:"type" yaml:"type"`
	ExecutionID         string `json:"execution_id" yaml:"execution"`
	ProcessInstanceID   string `json:"process_instance_id" yaml:"process_instance,omitempty"`
	ProcessDefinitionID string `json:"process_definition_id" yaml:"definition,omitempty"`
	ActivityID          string `json:"activity_id" yaml:"activity"`
	JobID               string `json:"job_id,omitempty" yaml:"job,omitempty"`
	Message             string `json:"message,omitempty" yaml:"message,omitempty"`
}
