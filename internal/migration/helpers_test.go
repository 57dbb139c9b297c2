package migration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/runtime"
	"github.com/roach88/flowmig/internal/testutil"
)

// instance builds the runtime state of one process instance.
type instance struct {
	s   *runtime.State
	pi  string
	def string
}

func newInstance(pi, def, rootActivity string) *instance {
	in := &instance{s: runtime.NewState(), pi: pi, def: def}
	in.s.AddExecution(&runtime.Execution{
		ID:                  pi,
		ProcessInstanceID:   pi,
		ProcessDefinitionID: def,
		ActivityID:          rootActivity,
		ActivityInstanceID:  pi,
		IsScope:             true,
	})
	return in
}

func (in *instance) exec(e runtime.Execution) *instance {
	e.ProcessInstanceID = in.pi
	e.ProcessDefinitionID = in.def
	in.s.AddExecution(&e)
	return in
}

func (in *instance) job(j runtime.Job) *instance {
	j.ProcessInstanceID = in.pi
	j.ProcessDefinitionID = in.def
	in.s.AddJob(&j)
	return in
}

func (in *instance) task(t runtime.Task) *instance {
	t.ProcessInstanceID = in.pi
	t.ProcessDefinitionID = in.def
	in.s.AddTask(&t)
	return in
}

func (in *instance) variable(v runtime.Variable) *instance {
	v.ProcessInstanceID = in.pi
	in.s.AddVariable(&v)
	return in
}

func (in *instance) subscription(es runtime.EventSubscription) *instance {
	es.ProcessInstanceID = in.pi
	in.s.AddEventSubscription(&es)
	return in
}

func (in *instance) incident(i runtime.Incident) *instance {
	i.ProcessInstanceID = in.pi
	i.ProcessDefinitionID = in.def
	in.s.AddIncident(&i)
	return in
}

func findJob(s *runtime.State, pi, id string) *runtime.Job {
	for _, j := range s.Jobs(pi) {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func findTask(s *runtime.State, pi, id string) *runtime.Task {
	for _, t := range s.Tasks(pi) {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// scopeOf returns the nearest ancestor of an execution that is not a
// concurrent container.
func scopeOf(s *runtime.State, executionID string) *runtime.Execution {
	e := s.Execution(s.Execution(executionID).ParentID)
	for e != nil && e.IsConcurrentContainer() {
		e = s.Execution(e.ParentID)
	}
	return e
}

// assertUniformChildren checks that no execution of the instance mixes a
// non-concurrent child with siblings: a scope has one plain child or only
// concurrent ones.
func assertUniformChildren(t *testing.T, s *runtime.State, pi string) {
	t.Helper()
	for _, e := range s.Executions(pi) {
		children := s.NonEventScopeChildren(e.ID)
		if len(children) < 2 {
			continue
		}
		for _, c := range children {
			assert.True(t, c.IsConcurrent, "execution %s next to %d siblings under %s is not concurrent", c.ID, len(children)-1, e.ID)
		}
	}
}

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestMigrator(t *testing.T, defs ...*definition.ProcessDefinition) (*Migrator, *testutil.FixedClock) {
	t.Helper()
	repo := definition.NewRepository()
	for _, d := range defs {
		require.NoError(t, repo.Add(d))
	}
	clock := testutil.NewFixedClock(t0)
	return NewMigrator(repo,
		WithIDGenerator(testutil.NewSequenceGenerator("gen")),
		WithClock(clock),
	), clock
}

func timer(activityID, expr string) definition.EventDeclaration {
	return definition.EventDeclaration{Kind: definition.EventTimer, ActivityID: activityID, TimerExpression: expr}
}
