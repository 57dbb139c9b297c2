package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/runtime"
)

var deployedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// orderDefinition builds version n of a small order process.
func orderDefinition(version int) *definition.ProcessDefinition {
	def := definition.New(fmt.Sprintf("order:%d", version), "order", version)
	def.Root.Add("review", definition.BehaviorUserTask)
	sub := def.Root.Add("fulfil", definition.BehaviorSubProcess)
	sub.Add("pack", definition.BehaviorUserTask).
		Declare(definition.EventDeclaration{Kind: definition.EventTimer, ActivityID: "pack", TimerExpression: "2h"})
	return def
}

// seedInstance deploys order:1 and imports one instance with a row of every
// kind.
func seedInstance(t *testing.T, s *Store, pi string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Deploy(ctx, orderDefinition(1), deployedAt))
	require.NoError(t, s.ImportFixture(ctx, testFixture(pi)))
}

func testFixture(pi string) *runtime.Fixture {
	due := time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)
	return &runtime.Fixture{
		ProcessInstance: pi,
		Definition:      "order:1",
		Executions: []*runtime.Execution{
			{ID: pi, ProcessInstanceID: pi, ProcessDefinitionID: "order:1", ActivityID: "order", ActivityInstanceID: pi, IsScope: true},
			{ID: pi + "-sub", ProcessInstanceID: pi, ParentID: pi, ProcessDefinitionID: "order:1", ActivityID: "fulfil", ActivityInstanceID: pi + "-ai-sub", IsScope: true},
			{ID: pi + "-pack", ProcessInstanceID: pi, ParentID: pi + "-sub", ProcessDefinitionID: "order:1", ActivityID: "pack", ActivityInstanceID: pi + "-ai-pack", IsScope: true, IsActive: true},
		},
		Jobs: []*runtime.Job{
			{ID: pi + "-job", Type: runtime.JobTimer, ExecutionID: pi + "-pack", ProcessInstanceID: pi, ProcessDefinitionID: "order:1", ActivityID: "pack", JobDefinitionID: "timer:pack", Config: "2h", DueDate: due, Retries: 3},
		},
		EventSubscriptions: []*runtime.EventSubscription{
			{ID: pi + "-sub-msg", Type: runtime.SubscriptionMessage, EventName: "cancel", ExecutionID: pi + "-sub", ProcessInstanceID: pi, ActivityID: "cancel"},
		},
		Tasks: []*runtime.Task{
			{ID: pi + "-task", Name: "Pack", ExecutionID: pi + "-pack", ProcessInstanceID: pi, ProcessDefinitionID: "order:1", TaskDefinitionKey: "pack", Assignee: "kim"},
		},
		Variables: []*runtime.Variable{
			{ID: pi + "-var", Name: "amount", Value: "10", ExecutionID: pi, ProcessInstanceID: pi},
		},
		Incidents: []*runtime.Incident{
			{ID: pi + "-inc", Type: "failedJob", ExecutionID: pi + "-pack", ProcessInstanceID: pi, ProcessDefinitionID: "order:1", ActivityID: "pack", JobID: pi + "-job", Message: "boom"},
		},
	}
}
