package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// concurrentState builds:
//
//	pi-1 (order)
//	  c-1 concurrent
//	    e-a (A, ai-a)
//	  c-2 concurrent
//	    e-s (S, ai-s)
//	      e-c (C, ai-c)
//	      e-t (T, transition)
//	  e-es (done, event scope)
//	    e-in (inner, ai-in)
func concurrentState() *State {
	s := NewState()
	add := func(e Execution) {
		e.ProcessInstanceID = "pi-1"
		e.ProcessDefinitionID = "order:1"
		s.AddExecution(&e)
	}
	add(Execution{ID: "pi-1", ActivityID: "order", ActivityInstanceID: "pi-1", IsScope: true})
	add(Execution{ID: "c-1", ParentID: "pi-1", IsConcurrent: true})
	add(Execution{ID: "e-a", ParentID: "c-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true})
	add(Execution{ID: "c-2", ParentID: "pi-1", IsConcurrent: true})
	add(Execution{ID: "e-s", ParentID: "c-2", ActivityID: "S", ActivityInstanceID: "ai-s", IsScope: true})
	add(Execution{ID: "e-c", ParentID: "e-s", ActivityID: "C", ActivityInstanceID: "ai-c", IsActive: true})
	add(Execution{ID: "e-t", ParentID: "e-s", ActivityID: "T"})
	add(Execution{ID: "e-es", ParentID: "pi-1", ActivityID: "done", IsScope: true, IsEventScope: true})
	add(Execution{ID: "e-in", ParentID: "e-es", ActivityID: "inner", ActivityInstanceID: "ai-in"})

	s.AddTask(&Task{ID: "task-a", ExecutionID: "e-a", ProcessInstanceID: "pi-1", TaskDefinitionKey: "A"})
	s.AddTask(&Task{ID: "task-c", ExecutionID: "e-c", ProcessInstanceID: "pi-1", TaskDefinitionKey: "C"})
	s.AddJob(&Job{ID: "job-s", Type: JobTimer, ExecutionID: "e-s", ProcessInstanceID: "pi-1", ActivityID: "S"})
	s.AddJob(&Job{ID: "job-t", Type: JobAsyncContinuation, ExecutionID: "e-t", ProcessInstanceID: "pi-1", ActivityID: "T"})
	s.AddIncident(&Incident{ID: "inc-t", ExecutionID: "e-t", ProcessInstanceID: "pi-1", ActivityID: "T", JobID: "job-t"})
	s.AddVariable(&Variable{ID: "var-1", Name: "amount", Value: "10", ExecutionID: "pi-1", ProcessInstanceID: "pi-1"})
	s.AddEventSubscription(&EventSubscription{ID: "sub-in", Type: SubscriptionCompensate, ExecutionID: "e-es", ProcessInstanceID: "pi-1", ActivityID: "inner"})
	return s
}

func TestExecutionClassification(t *testing.T) {
	s := concurrentState()

	assert.True(t, s.Execution("pi-1").IsProcessInstance())
	assert.False(t, s.Execution("e-a").IsProcessInstance())
	assert.True(t, s.Execution("c-1").IsConcurrentContainer())
	assert.False(t, s.Execution("e-s").IsConcurrentContainer())
	assert.True(t, s.Execution("e-t").IsTransition())
	assert.False(t, s.Execution("e-es").IsTransition())
	assert.Equal(t, []string{"pi-1"}, s.ProcessInstanceIDs())
}

func TestChildren(t *testing.T) {
	s := concurrentState()

	assert.Len(t, s.Children("pi-1"), 3)
	assert.Len(t, s.NonEventScopeChildren("pi-1"), 2)
	assert.Empty(t, s.Children("e-a"))
}

func TestActivityInstanceTree(t *testing.T) {
	s := concurrentState()

	root, err := s.ActivityInstanceTree("pi-1")
	require.NoError(t, err)

	assert.Equal(t, "pi-1", root.ID)
	assert.Equal(t, "order", root.ActivityID)
	require.Len(t, root.Children, 2, "concurrent containers are transparent, event scopes skipped")
	assert.Equal(t, "ai-a", root.Children[0].ID)
	assert.Equal(t, "pi-1", root.Children[0].ParentID)
	assert.Equal(t, "e-a", root.Children[0].ExecutionID)

	sub := root.Children[1]
	assert.Equal(t, "ai-s", sub.ID)
	require.Len(t, sub.Children, 1)
	assert.Equal(t, "ai-c", sub.Children[0].ID)
	require.Len(t, sub.TransitionInstances, 1)
	assert.Equal(t, TransitionInstance{
		ID:                       "e-t",
		ActivityID:               "T",
		ParentActivityInstanceID: "ai-s",
		ProcessInstanceID:        "pi-1",
		ExecutionID:              "e-t",
	}, *sub.TransitionInstances[0])

	var visited []string
	root.Walk(func(ai *ActivityInstance) { visited = append(visited, ai.ID) })
	assert.Equal(t, []string{"pi-1", "ai-a", "ai-s", "ai-c"}, visited)

	assert.Equal(t, "order (pi-1)\n  A (ai-a)\n  S (ai-s)\n    C (ai-c)\n    ~T (e-t)\n", root.Format())
}

func TestActivityInstanceTreeChildBeforeParent(t *testing.T) {
	s := NewState()
	s.AddExecution(&Execution{ID: "pi-1", ProcessInstanceID: "pi-1", ActivityID: "p", ActivityInstanceID: "pi-1"})
	s.AddExecution(&Execution{ID: "e-c", ProcessInstanceID: "pi-1", ParentID: "e-s", ActivityID: "C", ActivityInstanceID: "ai-c"})
	s.AddExecution(&Execution{ID: "e-s", ProcessInstanceID: "pi-1", ParentID: "pi-1", ActivityID: "S", ActivityInstanceID: "ai-s"})

	root, err := s.ActivityInstanceTree("pi-1")
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, "ai-c", root.Children[0].Children[0].ID)
}

func TestActivityInstanceTreeErrors(t *testing.T) {
	s := NewState()
	_, err := s.ActivityInstanceTree("missing")
	assert.ErrorContains(t, err, "not found")

	s.AddExecution(&Execution{ID: "pi-1", ProcessInstanceID: "pi-1", ActivityID: "p", ActivityInstanceID: "pi-1"})
	s.AddExecution(&Execution{ID: "e-x", ProcessInstanceID: "pi-1", ParentID: "ghost", ActivityID: "X", ActivityInstanceID: "ai-x"})
	_, err = s.ActivityInstanceTree("pi-1")
	assert.ErrorContains(t, err, "parent ghost not found")
}

func TestRemoveExecutionCascades(t *testing.T) {
	s := concurrentState()

	require.NoError(t, s.RemoveExecution("e-s"))

	assert.Nil(t, s.Execution("e-s"))
	assert.Nil(t, s.Execution("e-c"))
	assert.Nil(t, s.Execution("e-t"))
	assert.Nil(t, s.Execution("c-2"), "empty concurrent container is pruned")
	assert.NotNil(t, s.Execution("c-1"))

	assert.Len(t, s.Tasks("pi-1"), 1)
	assert.Empty(t, s.Jobs("pi-1"))
	assert.Empty(t, s.Incidents("pi-1"))
	assert.Len(t, s.Variables("pi-1"), 1)

	assert.Error(t, s.RemoveExecution("e-s"))
}

func TestDeleteJobRemovesItsIncidents(t *testing.T) {
	s := concurrentState()

	s.DeleteJob("job-t")
	assert.Len(t, s.Jobs("pi-1"), 1)
	assert.Empty(t, s.Incidents("pi-1"))
}

func TestCloneIsDeep(t *testing.T) {
	s := concurrentState()
	c := s.Clone()

	c.Execution("e-a").ActivityID = "B"
	c.DeleteTask("task-a")

	assert.Equal(t, "A", s.Execution("e-a").ActivityID)
	assert.Len(t, s.Tasks("pi-1"), 2)
}

