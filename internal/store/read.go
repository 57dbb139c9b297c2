package store

import (
	"context"
	"fmt"

	"github.com/roach88/flowmig/internal/runtime"
)

// LoadInstance reads every runtime row of one process instance into a new
// state. A missing instance yields an empty state, not an error.
func (s *Store) LoadInstance(ctx context.Context, processInstanceID string) (*runtime.State, error) {
	st := runtime.NewState()
	if err := loadInstance(ctx, s.db, processInstanceID, st); err != nil {
		return nil, err
	}
	return st, nil
}

// ExportInstance captures one stored process instance as a fixture.
func (s *Store) ExportInstance(ctx context.Context, processInstanceID string) (*runtime.Fixture, error) {
	st, err := s.LoadInstance(ctx, processInstanceID)
	if err != nil {
		return nil, err
	}
	return runtime.ExportFixture(st, processInstanceID)
}

// loadInstance reads rows in id order.
func loadInstance(ctx context.Context, q querier, processInstanceID string, st *runtime.State) error {
	loaders := []func(context.Context, querier, string, *runtime.State) error{
		loadExecutions,
		loadJobs,
		loadEventSubscriptions,
		loadTasks,
		loadVariables,
		loadIncidents,
	}
	for _, load := range loaders {
		if err := load(ctx, q, processInstanceID, st); err != nil {
			return fmt.Errorf("load instance %s: %w", processInstanceID, err)
		}
	}
	return nil
}

func loadExecutions(ctx context.Context, q querier, pi string, st *runtime.State) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, process_instance_id, parent_id, process_definition_id, activity_id,
		       activity_instance_id, is_scope, is_concurrent, is_active, is_event_scope
		FROM executions
		WHERE process_instance_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, pi)
	if err != nil {
		return fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e runtime.Execution
		if err := rows.Scan(&e.ID, &e.ProcessInstanceID, &e.ParentID, &e.ProcessDefinitionID, &e.ActivityID,
			&e.ActivityInstanceID, &e.IsScope, &e.IsConcurrent, &e.IsActive, &e.IsEventScope); err != nil {
			return fmt.Errorf("scan execution: %w", err)
		}
		st.AddExecution(&e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate executions: %w", err)
	}
	return nil
}

func loadJobs(ctx context.Context, q querier, pi string, st *runtime.State) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, execution_id, process_instance_id, process_definition_id, activity_id,
		       job_definition_id, config, due_date, retries, exception_message
		FROM jobs
		WHERE process_instance_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, pi)
	if err != nil {
		return fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			j   runtime.Job
			due string
		)
		if err := rows.Scan(&j.ID, &j.Type, &j.ExecutionID, &j.ProcessInstanceID, &j.ProcessDefinitionID, &j.ActivityID,
			&j.JobDefinitionID, &j.Config, &due, &j.Retries, &j.ExceptionMessage); err != nil {
			return fmt.Errorf("scan job: %w", err)
		}
		if j.DueDate, err = unmarshalTime(due); err != nil {
			return fmt.Errorf("job %s: %w", j.ID, err)
		}
		st.AddJob(&j)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate jobs: %w", err)
	}
	return nil
}

func loadEventSubscriptions(ctx context.Context, q querier, pi string, st *runtime.State) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, event_name, execution_id, process_instance_id, activity_id, configuration
		FROM event_subscriptions
		WHERE process_instance_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, pi)
	if err != nil {
		return fmt.Errorf("query event subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var es runtime.EventSubscription
		if err := rows.Scan(&es.ID, &es.Type, &es.EventName, &es.ExecutionID, &es.ProcessInstanceID,
			&es.ActivityID, &es.Configuration); err != nil {
			return fmt.Errorf("scan event subscription: %w", err)
		}
		st.AddEventSubscription(&es)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate event subscriptions: %w", err)
	}
	return nil
}

func loadTasks(ctx context.Context, q querier, pi string, st *runtime.State) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, execution_id, process_instance_id, process_definition_id, task_definition_key, assignee
		FROM tasks
		WHERE process_instance_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, pi)
	if err != nil {
		return fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t runtime.Task
		if err := rows.Scan(&t.ID, &t.Name, &t.ExecutionID, &t.ProcessInstanceID, &t.ProcessDefinitionID,
			&t.TaskDefinitionKey, &t.Assignee); err != nil {
			return fmt.Errorf("scan task: %w", err)
		}
		st.AddTask(&t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tasks: %w", err)
	}
	return nil
}

func loadVariables(ctx context.Context, q querier, pi string, st *runtime.State) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, value, execution_id, process_instance_id
		FROM variables
		WHERE process_instance_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, pi)
	if err != nil {
		return fmt.Errorf("query variables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v runtime.Variable
		if err := rows.Scan(&v.ID, &v.Name, &v.Value, &v.ExecutionID, &v.ProcessInstanceID); err != nil {
			return fmt.Errorf("scan variable: %w", err)
		}
		st.AddVariable(&v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate variables: %w", err)
	}
	return nil
}

func loadIncidents(ctx context.Context, q querier, pi string, st *runtime.State) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, type, execution_id, process_instance_id, process_definition_id, activity_id, job_id, message
		FROM incidents
		WHERE process_instance_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, pi)
	if err != nil {
		return fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var in runtime.Incident
		if err := rows.Scan(&in.ID, &in.Type, &in.ExecutionID, &in.ProcessInstanceID, &in.ProcessDefinitionID,
			&in.ActivityID, &in.JobID, &in.Message); err != nil {
			return fmt.Errorf("scan incident: %w", err)
		}
		st.AddIncident(&in)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate incidents: %w", err)
	}
	return nil
}
