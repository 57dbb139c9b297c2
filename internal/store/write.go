package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/flowmig/internal/runtime"
)

// ImportFixture stores a running process instance described by a fixture.
// Its definition must be deployed. Importing an id that is already stored
// returns ErrInstanceExists.
func (s *Store) ImportFixture(ctx context.Context, f *runtime.Fixture) error {
	st := runtime.NewState()
	f.Apply(st)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM executions WHERE process_instance_id = ?`,
			f.ProcessInstance).Scan(&n); err != nil {
			return fmt.Errorf("import %s: %w", f.ProcessInstance, err)
		}
		if n > 0 {
			return fmt.Errorf("import %s: %w", f.ProcessInstance, ErrInstanceExists)
		}
		if err := insertInstance(ctx, tx, st, f.ProcessInstance); err != nil {
			return fmt.Errorf("import %s: %w", f.ProcessInstance, err)
		}
		return nil
	})
}

// RunInstanceTx loads one process instance inside a transaction, calls fn
// with its state and, when fn succeeds, replaces the instance's rows with
// the state's. When fn fails nothing is written.
//
// The state passed to fn holds only this instance. A missing instance
// yields an empty state; fn decides whether that is an error.
func (s *Store) RunInstanceTx(ctx context.Context, processInstanceID string, fn func(*runtime.State) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		st := runtime.NewState()
		if err := loadInstance(ctx, tx, processInstanceID, st); err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		if err := deleteInstance(ctx, tx, processInstanceID); err != nil {
			return err
		}
		return insertInstance(ctx, tx, st, processInstanceID)
	})
}

// DeleteInstance removes every runtime row of a process instance.
func (s *Store) DeleteInstance(ctx context.Context, processInstanceID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteInstance(ctx, tx, processInstanceID)
	})
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func deleteInstance(ctx context.Context, q querier, processInstanceID string) error {
	for _, table := range []string{"executions", "jobs", "event_subscriptions", "tasks", "variables", "incidents"} {
		if _, err := q.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE process_instance_id = ?", processInstanceID); err != nil {
			return fmt.Errorf("delete %s of %s: %w", table, processInstanceID, err)
		}
	}
	return nil
}

// insertInstance writes every record st holds for processInstanceID.
func insertInstance(ctx context.Context, q querier, st *runtime.State, processInstanceID string) error {
	for _, e := range st.Executions(processInstanceID) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO executions
			(id, process_instance_id, parent_id, process_definition_id, activity_id,
			 activity_instance_id, is_scope, is_concurrent, is_active, is_event_scope)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, e.ProcessInstanceID, e.ParentID, e.ProcessDefinitionID, e.ActivityID,
			e.ActivityInstanceID, boolInt(e.IsScope), boolInt(e.IsConcurrent), boolInt(e.IsActive), boolInt(e.IsEventScope),
		); err != nil {
			return fmt.Errorf("write execution %s: %w", e.ID, err)
		}
	}

	for _, j := range st.Jobs(processInstanceID) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO jobs
			(id, type, execution_id, process_instance_id, process_definition_id, activity_id,
			 job_definition_id, config, due_date, retries, exception_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			j.ID, string(j.Type), j.ExecutionID, j.ProcessInstanceID, j.ProcessDefinitionID, j.ActivityID,
			j.JobDefinitionID, j.Config, marshalTime(j.DueDate), j.Retries, j.ExceptionMessage,
		); err != nil {
			return fmt.Errorf("write job %s: %w", j.ID, err)
		}
	}

	for _, es := range st.EventSubscriptions(processInstanceID) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO event_subscriptions
			(id, type, event_name, execution_id, process_instance_id, activity_id, configuration)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			es.ID, string(es.Type), es.EventName, es.ExecutionID, es.ProcessInstanceID, es.ActivityID, es.Configuration,
		); err != nil {
			return fmt.Errorf("write event subscription %s: %w", es.ID, err)
		}
	}

	for _, t := range st.Tasks(processInstanceID) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO tasks
			(id, name, execution_id, process_instance_id, process_definition_id, task_definition_key, assignee)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID, t.Name, t.ExecutionID, t.ProcessInstanceID, t.ProcessDefinitionID, t.TaskDefinitionKey, t.Assignee,
		); err != nil {
			return fmt.Errorf("write task %s: %w", t.ID, err)
		}
	}

	for _, v := range st.Variables(processInstanceID) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO variables (id, name, value, execution_id, process_instance_id)
			VALUES (?, ?, ?, ?, ?)
		`,
			v.ID, v.Name, v.Value, v.ExecutionID, v.ProcessInstanceID,
		); err != nil {
			return fmt.Errorf("write variable %s: %w", v.ID, err)
		}
	}

	for _, in := range st.Incidents(processInstanceID) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO incidents
			(id, type, execution_id, process_instance_id, process_definition_id, activity_id, job_id, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			in.ID, in.Type, in.ExecutionID, in.ProcessInstanceID, in.ProcessDefinitionID, in.ActivityID, in.JobID, in.Message,
		); err != nil {
			return fmt.Errorf("write incident %s: %w", in.ID, err)
		}
	}

	return nil
}
