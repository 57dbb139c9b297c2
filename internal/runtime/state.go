package runtime

import (
	"fmt"
	"slices"
)

// State is the in-memory runtime model of one or more process instances.
//
// Records are kept in insertion order and handed out as pointers; callers
// mutate them in place. State is not safe for concurrent use. Each migration
// works on its own State loaded inside its own transaction.
type State struct {
	executions    []*Execution
	jobs          []*Job
	subscriptions []*EventSubscription
	tasks         []*Task
	variables     []*Variable
	incidents     []*Incident
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// AddExecution appends an execution.
func (s *State) AddExecution(e *Execution) { s.executions = append(s.executions, e) }

// AddJob appends a job.
func (s *State) AddJob(j *Job) { s.jobs = append(s.jobs, j) }

// AddEventSubscription appends an event subscription.
func (s *State) AddEventSubscription(es *EventSubscription) {
	s.subscriptions = append(s.subscriptions, es)
}

// AddTask appends a task.
func (s *State) AddTask(t *Task) { s.tasks = append(s.tasks, t) }

// AddVariable appends a variable.
func (s *State) AddVariable(v *Variable) { s.variables = append(s.variables, v) }

// AddIncident appends an incident.
func (s *State) AddIncident(i *Incident) { s.incidents = append(s.incidents, i) }

// ProcessInstanceIDs returns the ids of all process-instance executions.
func (s *State) ProcessInstanceIDs() []string {
	var out []string
	for _, e := range s.executions {
		if e.IsProcessInstance() {
			out = append(out, e.ID)
		}
	}
	return out
}

// Execution returns the execution with the given id, or nil.
func (s *State) Execution(id string) *Execution {
	for _, e := range s.executions {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Executions returns every execution of a process instance.
func (s *State) Executions(processInstanceID string) []*Execution {
	return filter(s.executions, func(e *Execution) bool { return e.ProcessInstanceID == processInstanceID })
}

// Children returns the direct child executions of id.
func (s *State) Children(id string) []*Execution {
	return filter(s.executions, func(e *Execution) bool { return e.ParentID == id })
}

// NonEventScopeChildren returns the direct children of id that are not
// event-scope executions.
func (s *State) NonEventScopeChildren(id string) []*Execution {
	return filter(s.executions, func(e *Execution) bool { return e.ParentID == id && !e.IsEventScope })
}

// Jobs returns every job of a process instance.
func (s *State) Jobs(processInstanceID string) []*Job {
	return filter(s.jobs, func(j *Job) bool { return j.ProcessInstanceID == processInstanceID })
}

// EventSubscriptions returns every event subscription of a process instance.
func (s *State) EventSubscriptions(processInstanceID string) []*EventSubscription {
	return filter(s.subscriptions, func(es *EventSubscription) bool { return es.ProcessInstanceID == processInstanceID })
}

// Tasks returns every task of a process instance.
func (s *State) Tasks(processInstanceID string) []*Task {
	return filter(s.tasks, func(t *Task) bool { return t.ProcessInstanceID == processInstanceID })
}

// Variables returns every variable of a process instance.
func (s *State) Variables(processInstanceID string) []*Variable {
	return filter(s.variables, func(v *Variable) bool { return v.ProcessInstanceID == processInstanceID })
}

// Incidents returns every incident of a process instance.
func (s *State) Incidents(processInstanceID string) []*Incident {
	return filter(s.incidents, func(i *Incident) bool { return i.ProcessInstanceID == processInstanceID })
}

// DeleteJob removes a job and the incidents raised for it.
func (s *State) DeleteJob(id string) {
	s.jobs = slices.DeleteFunc(s.jobs, func(j *Job) bool { return j.ID == id })
	s.incidents = slices.DeleteFunc(s.incidents, func(i *Incident) bool { return i.JobID == id })
}

// DeleteEventSubscription removes an event subscription.
func (s *State) DeleteEventSubscription(id string) {
	s.subscriptions = slices.DeleteFunc(s.subscriptions, func(es *EventSubscription) bool { return es.ID == id })
}

// DeleteTask removes a task.
func (s *State) DeleteTask(id string) {
	s.tasks = slices.DeleteFunc(s.tasks, func(t *Task) bool { return t.ID == id })
}

// DeleteVariable removes a variable.
func (s *State) DeleteVariable(id string) {
	s.variables = slices.DeleteFunc(s.variables, func(v *Variable) bool { return v.ID == id })
}

// DeleteIncident removes an incident.
func (s *State) DeleteIncident(id string) {
	s.incidents = slices.DeleteFunc(s.incidents, func(i *Incident) bool { return i.ID == id })
}

// RemoveExecution deletes an execution, its whole subtree, and every entity
// owned by a deleted execution. A concurrent container left without children
// is removed as well.
func (s *State) RemoveExecution(id string) error {
	e := s.Execution(id)
	if e == nil {
		return fmt.Errorf("remove execution %s: not found", id)
	}
	parentID := e.ParentID

	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, ex := range s.executions {
			if !doomed[ex.ID] && doomed[ex.ParentID] {
				doomed[ex.ID] = true
				changed = true
			}
		}
	}

	s.executions = slices.DeleteFunc(s.executions, func(ex *Execution) bool { return doomed[ex.ID] })
	s.jobs = slices.DeleteFunc(s.jobs, func(j *Job) bool { return doomed[j.ExecutionID] })
	s.subscriptions = slices.DeleteFunc(s.subscriptions, func(es *EventSubscription) bool { return doomed[es.ExecutionID] })
	s.tasks = slices.DeleteFunc(s.tasks, func(t *Task) bool { return doomed[t.ExecutionID] })
	s.variables = slices.DeleteFunc(s.variables, func(v *Variable) bool { return doomed[v.ExecutionID] })
	s.incidents = slices.DeleteFunc(s.incidents, func(i *Incident) bool { return doomed[i.ExecutionID] })

	s.PruneContainer(parentID)
	return nil
}

// PruneContainer removes id if it is a concurrent container without
// children, then repeats for its parent.
func (s *State) PruneContainer(id string) {
	for id != "" {
		e := s.Execution(id)
		if e == nil || !e.IsConcurrentContainer() || len(s.Children(id)) > 0 {
			return
		}
		id = e.ParentID
		s.executions = slices.DeleteFunc(s.executions, func(ex *Execution) bool { return ex == e })
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	return &State{
		executions:    cloneAll(s.executions),
		jobs:          cloneAll(s.jobs),
		subscriptions: cloneAll(s.subscriptions),
		tasks:         cloneAll(s.tasks),
		variables:     cloneAll(s.variables),
		incidents:     cloneAll(s.incidents),
	}
}

func filter[T any](in []*T, keep func(*T) bool) []*T {
	var out []*T
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func cloneAll[T any](in []*T) []*T {
	out := make([]*T, len(in))
	for i, v := range in {
		c := *v
		out[i] = &c
	}
	return out
}
