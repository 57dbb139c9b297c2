package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowmig/internal/definition"
	"github.com/roach88/flowmig/internal/plan"
	"github.com/roach88/flowmig/internal/runtime"
)

// renameDefinitions: p:1 has A with a timer, p:2 renames it to B with a
// longer timer.
func renameDefinitions() (*definition.ProcessDefinition, *definition.ProcessDefinition) {
	p1 := definition.New("p:1", "p", 1)
	p1.Root.Add("A", definition.BehaviorUserTask).Declare(timer("A", "1h"))
	p2 := definition.New("p:2", "p", 2)
	p2.Root.Add("B", definition.BehaviorUserTask).Declare(timer("B", "2h"))
	return p1, p2
}

func renameInstance() *instance {
	return newInstance("pi-1", "p:1", "p").
		exec(runtime.Execution{ID: "e-a", ParentID: "pi-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsScope: true, IsActive: true}).
		task(runtime.Task{ID: "t-a", ExecutionID: "e-a", TaskDefinitionKey: "A"}).
		job(runtime.Job{ID: "j-a", Type: runtime.JobTimer, ExecutionID: "e-a", ActivityID: "A", JobDefinitionID: "timer:A", Config: "1h", DueDate: t0.Add(-time.Hour), Retries: 3}).
		variable(runtime.Variable{ID: "v-1", ExecutionID: "pi-1", Name: "amount", Value: "10"})
}

func TestMigrateRenamedTaskKeepsTimer(t *testing.T) {
	p1, p2 := renameDefinitions()
	m, _ := newTestMigrator(t, p1, p2)
	in := renameInstance()

	p, err := plan.NewBuilder(p1, p2).MapActivities("A", "B").Build()
	require.NoError(t, err)

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Migrated: 3}, res.Stats)

	e := in.s.Execution("e-a")
	assert.Equal(t, "B", e.ActivityID)
	assert.Equal(t, "p:2", e.ProcessDefinitionID)
	assert.Equal(t, "p:2", in.s.Execution("pi-1").ProcessDefinitionID)

	assert.Equal(t, "B", findTask(in.s, "pi-1", "t-a").TaskDefinitionKey)

	j := findJob(in.s, "pi-1", "j-a")
	require.NotNil(t, j)
	assert.Equal(t, "B", j.ActivityID)
	assert.Equal(t, "timer:B", j.JobDefinitionID)
	assert.Equal(t, "1h", j.Config, "trigger kept without updateEventTrigger")
	assert.Equal(t, t0.Add(-time.Hour), j.DueDate)
	assert.Equal(t, "p:2", j.ProcessDefinitionID)

	tree, err := in.s.ActivityInstanceTree("pi-1")
	require.NoError(t, err)
	assert.Equal(t, "p (pi-1)\n  B (ai-a)\n", tree.Format())
}

func TestMigrateRenamedTaskUpdatesTimer(t *testing.T) {
	p1, p2 := renameDefinitions()
	m, clock := newTestMigrator(t, p1, p2)
	in := renameInstance()

	p, err := plan.NewBuilder(p1, p2).MapActivities("A", "B").UpdateEventTrigger().Build()
	require.NoError(t, err)

	_, err = m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)

	j := findJob(in.s, "pi-1", "j-a")
	require.NotNil(t, j)
	assert.Equal(t, "2h", j.Config)
	assert.Equal(t, clock.Now().Add(2*time.Hour), j.DueDate)
	assert.Len(t, in.s.Jobs("pi-1"), 1, "matched timer does not emerge again")
}

func TestMigrateCreatesSharedIntermediateScope(t *testing.T) {
	src := definition.New("c:1", "c", 1)
	src.Root.Add("A", definition.BehaviorUserTask)
	src.Root.Add("C", definition.BehaviorUserTask)
	tgt := definition.New("c:2", "c", 2)
	s2 := tgt.Root.Add("S2", definition.BehaviorSubProcess)
	s2.Add("B", definition.BehaviorUserTask)
	s2.Add("D", definition.BehaviorUserTask)

	m, _ := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "c:1", "c").
		exec(runtime.Execution{ID: "c-1", ParentID: "pi-1", IsConcurrent: true}).
		exec(runtime.Execution{ID: "e-a", ParentID: "c-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true}).
		exec(runtime.Execution{ID: "c-2", ParentID: "pi-1", IsConcurrent: true}).
		exec(runtime.Execution{ID: "e-c", ParentID: "c-2", ActivityID: "C", ActivityInstanceID: "ai-c", IsActive: true}).
		task(runtime.Task{ID: "t-a", ExecutionID: "e-a", TaskDefinitionKey: "A"}).
		task(runtime.Task{ID: "t-c", ExecutionID: "e-c", TaskDefinitionKey: "C"})

	// The plan validator rejects moving A into a new sub process, so the
	// plan is assembled directly.
	p := &plan.Plan{
		SourceDefinitionID: "c:1",
		TargetDefinitionID: "c:2",
		Instructions: []plan.Instruction{
			{SourceActivityID: "A", TargetActivityID: "B"},
			{SourceActivityID: "C", TargetActivityID: "D"},
		},
	}

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.CreatedScopes)

	scopeA := scopeOf(in.s, "e-a")
	scopeC := scopeOf(in.s, "e-c")
	require.NotNil(t, scopeA)
	assert.Equal(t, "S2", scopeA.ActivityID)
	assert.Same(t, scopeA, scopeC, "both tokens share one new S2 execution")
	assert.Equal(t, "pi-1", scopeA.ParentID, "fork created for S2 is folded back")
	assert.Nil(t, in.s.Execution("c-1"))
	assert.Nil(t, in.s.Execution("c-2"))

	tree, err := in.s.ActivityInstanceTree("pi-1")
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	sub := tree.Children[0]
	assert.Equal(t, "S2", sub.ActivityID)
	require.Len(t, sub.Children, 2)
	assert.ElementsMatch(t, []string{"B", "D"}, []string{sub.Children[0].ActivityID, sub.Children[1].ActivityID})

	assert.Equal(t, "B", findTask(in.s, "pi-1", "t-a").TaskDefinitionKey)
	assert.Equal(t, "D", findTask(in.s, "pi-1", "t-c").TaskDefinitionKey)

	branches := in.s.NonEventScopeChildren(scopeA.ID)
	require.Len(t, branches, 2)
	for _, b := range branches {
		assert.True(t, b.IsConcurrentContainer())
		assert.Len(t, in.s.Children(b.ID), 1)
	}
	assertUniformChildren(t, in.s, "pi-1")
}

func TestMigrateSiblingsNeedingDifferentScopes(t *testing.T) {
	src := definition.New("c:1", "c", 1)
	src.Root.Add("A", definition.BehaviorUserTask)
	src.Root.Add("C", definition.BehaviorUserTask)
	tgt := definition.New("c:3", "c", 3)
	tgt.Root.Add("S2", definition.BehaviorSubProcess).Add("B", definition.BehaviorUserTask)
	tgt.Root.Add("S3", definition.BehaviorSubProcess).Add("D", definition.BehaviorUserTask)

	m, _ := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "c:1", "c").
		exec(runtime.Execution{ID: "c-1", ParentID: "pi-1", IsConcurrent: true}).
		exec(runtime.Execution{ID: "e-a", ParentID: "c-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true}).
		exec(runtime.Execution{ID: "c-2", ParentID: "pi-1", IsConcurrent: true}).
		exec(runtime.Execution{ID: "e-c", ParentID: "c-2", ActivityID: "C", ActivityInstanceID: "ai-c", IsActive: true})

	p := &plan.Plan{
		SourceDefinitionID: "c:1",
		TargetDefinitionID: "c:3",
		Instructions: []plan.Instruction{
			{SourceActivityID: "A", TargetActivityID: "B"},
			{SourceActivityID: "C", TargetActivityID: "D"},
		},
	}

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.CreatedScopes)

	scopeA := scopeOf(in.s, "e-a")
	scopeC := scopeOf(in.s, "e-c")
	assert.Equal(t, "S2", scopeA.ActivityID)
	assert.Equal(t, "S3", scopeC.ActivityID)
	assert.NotEqual(t, scopeA.ID, scopeC.ID)

	tree, err := in.s.ActivityInstanceTree("pi-1")
	require.NoError(t, err)
	assert.Len(t, tree.Children, 2)
}

func TestMigrateUnhandledJobFailsWithoutMutation(t *testing.T) {
	p1, p2 := renameDefinitions()
	m, _ := newTestMigrator(t, p1, p2)
	in := renameInstance().
		job(runtime.Job{ID: "j-x", Type: runtime.JobType("batch-seed"), ExecutionID: "e-a", ActivityID: "A"})

	before, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)

	p, err := plan.NewBuilder(p1, p2).MapActivities("A", "B").Build()
	require.NoError(t, err)

	_, err = m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "process instance contains not migrated jobs: [j-x]")

	after, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMigrateUnknownSourceActivityFailsFast(t *testing.T) {
	p1, p2 := renameDefinitions()
	m, _ := newTestMigrator(t, p1, p2)
	in := renameInstance().
		exec(runtime.Execution{ID: "e-z", ParentID: "pi-1", ActivityID: "Z", ActivityInstanceID: "ai-z"})

	p, err := plan.NewBuilder(p1, p2).MapActivities("A", "B").Build()
	require.NoError(t, err)

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsUserError(err))
	assert.Equal(t, ErrCodeUnknownSourceActivity, Code(err))
	assert.False(t, IsValidationError(err))
}

func TestMigratePreconditions(t *testing.T) {
	p1, p2 := renameDefinitions()
	m, _ := newTestMigrator(t, p1, p2)
	in := renameInstance()
	good := &plan.Plan{SourceDefinitionID: "p:1", TargetDefinitionID: "p:2"}

	tests := []struct {
		name string
		plan *plan.Plan
		pi   string
		want ErrorCode
	}{
		{"missing plan", nil, "pi-1", ErrCodeMissingPlan},
		{"missing instance id", good, "", ErrCodeMissingInstances},
		{"unknown instance", good, "pi-9", ErrCodeInstanceNotFound},
		{"not the process instance", good, "e-a", ErrCodeInstanceNotFound},
		{"wrong source", &plan.Plan{SourceDefinitionID: "p:2", TargetDefinitionID: "p:1"}, "pi-1", ErrCodeDefinitionMismatch},
		{"unknown target", &plan.Plan{SourceDefinitionID: "p:1", TargetDefinitionID: "p:7"}, "pi-1", ErrCodeDefinitionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Migrate(context.Background(), in.s, tt.plan, tt.pi, Options{})
			require.Error(t, err)
			assert.Equal(t, tt.want, Code(err))
		})
	}
}

func TestMigrateCancelledContext(t *testing.T) {
	p1, p2 := renameDefinitions()
	m, _ := newTestMigrator(t, p1, p2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Migrate(ctx, renameInstance().s, &plan.Plan{SourceDefinitionID: "p:1", TargetDefinitionID: "p:2"}, "pi-1", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMigrateDryRunDoesNotMutate(t *testing.T) {
	p1, p2 := renameDefinitions()
	m, _ := newTestMigrator(t, p1, p2)
	in := renameInstance()
	before, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)

	p, err := plan.NewBuilder(p1, p2).MapActivities("A", "B").Build()
	require.NoError(t, err)

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.False(t, res.Report.HasFailures())
	require.NotNil(t, res.Instance.Node("ai-a"))
	assert.Equal(t, "B", res.Instance.Node("ai-a").TargetScope.ID)

	after, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMigrateIdentityIsNoOp(t *testing.T) {
	_, p2 := renameDefinitions()
	m, _ := newTestMigrator(t, p2)
	in := newInstance("pi-1", "p:2", "p").
		exec(runtime.Execution{ID: "e-b", ParentID: "pi-1", ActivityID: "B", ActivityInstanceID: "ai-b", IsScope: true, IsActive: true}).
		task(runtime.Task{ID: "t-b", ExecutionID: "e-b", TaskDefinitionKey: "B"}).
		job(runtime.Job{ID: "j-b", Type: runtime.JobTimer, ExecutionID: "e-b", ActivityID: "B", JobDefinitionID: "timer:B", Config: "2h", DueDate: t0, Retries: 3}).
		variable(runtime.Variable{ID: "v-1", ExecutionID: "pi-1", Name: "amount", Value: "10"})

	before, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)

	p, err := plan.NewBuilder(p2, p2).MapEqualActivities().Build()
	require.NoError(t, err)
	require.Len(t, p.Instructions, 1)

	_, err = m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)

	after, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMigrateIdentityKeepsSubProcessState(t *testing.T) {
	d := definition.New("n:1", "n", 1)
	d.Root.Add("S", definition.BehaviorSubProcess).
		Declare(timer("S", "1h")).
		Add("A", definition.BehaviorUserTask)

	m, _ := newTestMigrator(t, d)
	in := newInstance("pi-1", "n:1", "n").
		exec(runtime.Execution{ID: "e-s", ParentID: "pi-1", ActivityID: "S", ActivityInstanceID: "ai-s", IsScope: true}).
		exec(runtime.Execution{ID: "e-a", ParentID: "e-s", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true}).
		task(runtime.Task{ID: "t-a", ExecutionID: "e-a", TaskDefinitionKey: "A"}).
		variable(runtime.Variable{ID: "v-s", ExecutionID: "e-s", Name: "local", Value: "x"}).
		job(runtime.Job{ID: "j-s", Type: runtime.JobTimer, ExecutionID: "e-s", ActivityID: "S", JobDefinitionID: "timer:S", Config: "1h", DueDate: t0, Retries: 3})

	before, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)

	p, err := plan.NewBuilder(d, d).MapEqualActivities().Build()
	require.NoError(t, err)
	require.Equal(t, []plan.Instruction{{SourceActivityID: "A", TargetActivityID: "A"}}, p.Instructions)

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Stats.RemovedInstances)
	assert.Zero(t, res.Stats.CreatedScopes)
	assert.Zero(t, res.Stats.Removed)
	assert.Zero(t, res.Stats.Emerged)
	assert.Equal(t, "S", res.Instance.Node("ai-s").TargetScope.ID)

	after, err := in.s.Fingerprint("pi-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	j := findJob(in.s, "pi-1", "j-s")
	require.NotNil(t, j)
	assert.Equal(t, t0, j.DueDate)
	assert.Len(t, in.s.Variables("pi-1"), 1)
}

func TestMigrateKeepsContainerOnlyWhenDescendantsStayInside(t *testing.T) {
	src := definition.New("n:1", "n", 1)
	src.Root.Add("S", definition.BehaviorSubProcess).Add("A", definition.BehaviorUserTask)
	tgt := definition.New("n:2", "n", 2)
	tgt.Root.Add("S", definition.BehaviorSubProcess).Add("A", definition.BehaviorUserTask)
	tgt.Root.Add("B", definition.BehaviorUserTask)

	m, _ := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "n:1", "n").
		exec(runtime.Execution{ID: "e-s", ParentID: "pi-1", ActivityID: "S", ActivityInstanceID: "ai-s", IsScope: true}).
		exec(runtime.Execution{ID: "e-a", ParentID: "e-s", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true})

	// A leaves S, so S has nothing left to represent.
	p := &plan.Plan{
		SourceDefinitionID: "n:1",
		TargetDefinitionID: "n:2",
		Instructions:       []plan.Instruction{{SourceActivityID: "A", TargetActivityID: "B"}},
	}
	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RemovedInstances)
	assert.Nil(t, in.s.Execution("e-s"))
	assert.Equal(t, "pi-1", in.s.Execution("e-a").ParentID)
}

func TestMigrateRemovedScopeReattachesConcurrentChildren(t *testing.T) {
	src := definition.New("s:1", "s", 1)
	sub := src.Root.Add("S", definition.BehaviorSubProcess)
	sub.Add("A", definition.BehaviorUserTask)
	sub.Add("C", definition.BehaviorUserTask)
	tgt := definition.New("s:2", "s", 2)
	tgt.Root.Add("A", definition.BehaviorUserTask)
	tgt.Root.Add("C", definition.BehaviorUserTask)

	m, _ := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "s:1", "s").
		exec(runtime.Execution{ID: "e-s", ParentID: "pi-1", ActivityID: "S", ActivityInstanceID: "ai-s", IsScope: true}).
		exec(runtime.Execution{ID: "c-1", ParentID: "e-s", IsConcurrent: true}).
		exec(runtime.Execution{ID: "e-a", ParentID: "c-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true}).
		exec(runtime.Execution{ID: "c-2", ParentID: "e-s", IsConcurrent: true}).
		exec(runtime.Execution{ID: "e-c", ParentID: "c-2", ActivityID: "C", ActivityInstanceID: "ai-c", IsActive: true})

	p := &plan.Plan{
		SourceDefinitionID: "s:1",
		TargetDefinitionID: "s:2",
		Instructions: []plan.Instruction{
			{SourceActivityID: "A", TargetActivityID: "A"},
			{SourceActivityID: "C", TargetActivityID: "C"},
		},
	}
	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RemovedInstances)
	assert.Nil(t, in.s.Execution("e-s"))

	for _, id := range []string{"e-a", "e-c"} {
		container := in.s.Execution(in.s.Execution(id).ParentID)
		require.NotNil(t, container)
		assert.True(t, container.IsConcurrentContainer(), id)
		assert.Equal(t, "pi-1", container.ParentID, id)
	}
	assert.Len(t, in.s.NonEventScopeChildren("pi-1"), 2)
	assertUniformChildren(t, in.s, "pi-1")

	tree, err := in.s.ActivityInstanceTree("pi-1")
	require.NoError(t, err)
	assert.Equal(t, "s (pi-1)\n  A (ai-a)\n  C (ai-c)\n", tree.Format())
}

func TestMigrateRemovesUnmappedScopeAndReattachesChild(t *testing.T) {
	src := definition.New("s:1", "s", 1)
	src.Root.Add("S", definition.BehaviorSubProcess).Add("A", definition.BehaviorUserTask)
	tgt := definition.New("s:2", "s", 2)
	tgt.Root.Add("A", definition.BehaviorUserTask)

	m, _ := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "s:1", "s").
		exec(runtime.Execution{ID: "e-s", ParentID: "pi-1", ActivityID: "S", ActivityInstanceID: "ai-s", IsScope: true}).
		exec(runtime.Execution{ID: "e-a", ParentID: "e-s", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true}).
		variable(runtime.Variable{ID: "v-s", ExecutionID: "e-s", Name: "local", Value: "x"}).
		task(runtime.Task{ID: "t-a", ExecutionID: "e-a", TaskDefinitionKey: "A"})

	p := &plan.Plan{
		SourceDefinitionID: "s:1",
		TargetDefinitionID: "s:2",
		Instructions:       []plan.Instruction{{SourceActivityID: "A", TargetActivityID: "A"}},
	}

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RemovedInstances)
	assert.Equal(t, 1, res.Stats.Removed)

	assert.Nil(t, in.s.Execution("e-s"))
	assert.Equal(t, "pi-1", in.s.Execution("e-a").ParentID)
	assert.Empty(t, in.s.Variables("pi-1"))
	assert.NotNil(t, findTask(in.s, "pi-1", "t-a"))

	tree, err := in.s.ActivityInstanceTree("pi-1")
	require.NoError(t, err)
	assert.Equal(t, "s (pi-1)\n  A (ai-a)\n", tree.Format())
}

func TestMigrateRemovesUnmappedLeaf(t *testing.T) {
	src := definition.New("l:1", "l", 1)
	src.Root.Add("X", definition.BehaviorUserTask)
	src.Root.Add("A", definition.BehaviorUserTask)
	tgt := definition.New("l:2", "l", 2)
	tgt.Root.Add("A", definition.BehaviorUserTask)

	m, _ := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "l:1", "l").
		exec(runtime.Execution{ID: "e-x", ParentID: "pi-1", ActivityID: "X", ActivityInstanceID: "ai-x", IsActive: true}).
		task(runtime.Task{ID: "t-x", ExecutionID: "e-x", TaskDefinitionKey: "X"}).
		incident(runtime.Incident{ID: "inc-x", Type: "failedListener", ExecutionID: "e-x", ActivityID: "X"})

	p, err := plan.NewBuilder(src, tgt).MapEqualActivities().Build()
	require.NoError(t, err)

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RemovedInstances)
	assert.Zero(t, res.Stats.CreatedScopes)

	assert.Nil(t, in.s.Execution("e-x"))
	assert.Empty(t, in.s.Tasks("pi-1"))
	assert.Empty(t, in.s.Incidents("pi-1"))
	assert.Equal(t, []string{"pi-1"}, in.s.ProcessInstanceIDs())
}

func TestMigrateStrictLeafPolicy(t *testing.T) {
	src := definition.New("l:1", "l", 1)
	src.Root.Add("X", definition.BehaviorUserTask)
	tgt := definition.New("l:2", "l", 2)

	repo := definition.NewRepository(src, tgt)
	validators := append(DefaultInstanceValidators(), InstanceValidatorFunc(NoUnmappedLeafInstanceValidator))
	m := NewMigrator(repo, WithValidators(validators...))

	in := newInstance("pi-1", "l:1", "l").
		exec(runtime.Execution{ID: "e-x", ParentID: "pi-1", ActivityID: "X", ActivityInstanceID: "ai-x", IsActive: true})

	_, err := m.Migrate(context.Background(), in.s, &plan.Plan{SourceDefinitionID: "l:1", TargetDefinitionID: "l:2"}, "pi-1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot migrate activity instance 'ai-x':\n\t\tthere is no migration instruction for activity 'X'")
}

func TestMigrateEmergingAndRemovedTriggers(t *testing.T) {
	src := definition.New("e:1", "e", 1)
	src.Root.Add("A", definition.BehaviorUserTask).Declare(definition.EventDeclaration{
		Kind: definition.EventMessage, ActivityID: "A", EventName: "cancel",
	})
	tgt := definition.New("e:2", "e", 2)
	tgt.Root.Add("B", definition.BehaviorUserTask).Declare(timer("B", "30m"))

	m, clock := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "e:1", "e").
		exec(runtime.Execution{ID: "e-a", ParentID: "pi-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsScope: true, IsActive: true}).
		subscription(runtime.EventSubscription{ID: "sub-a", Type: runtime.SubscriptionMessage, EventName: "cancel", ExecutionID: "e-a", ActivityID: "A"})

	p := &plan.Plan{
		SourceDefinitionID: "e:1",
		TargetDefinitionID: "e:2",
		Instructions:       []plan.Instruction{{SourceActivityID: "A", TargetActivityID: "B"}},
	}

	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Removed)
	assert.Equal(t, 1, res.Stats.Emerged)

	assert.Empty(t, in.s.EventSubscriptions("pi-1"))
	jobs := in.s.Jobs("pi-1")
	require.Len(t, jobs, 1)
	assert.Equal(t, runtime.JobTimer, jobs[0].Type)
	assert.Equal(t, "e-a", jobs[0].ExecutionID)
	assert.Equal(t, "B", jobs[0].ActivityID)
	assert.Equal(t, "timer:B", jobs[0].JobDefinitionID)
	assert.Equal(t, clock.Now().Add(30*time.Minute), jobs[0].DueDate)
	assert.Equal(t, "gen-1", jobs[0].ID)
}

func TestMigrateJobIncidentFollowsBoundaryTimer(t *testing.T) {
	src := definition.New("b:1", "b", 1)
	src.Root.Add("A", definition.BehaviorUserTask).Declare(timer("T", "1h"))
	src.Root.Add("T", definition.BehaviorBoundaryEvent).AttachedTo = "A"
	tgt := definition.New("b:2", "b", 2)
	tgt.Root.Add("A2", definition.BehaviorUserTask).Declare(timer("T2", "1h"))
	tgt.Root.Add("T2", definition.BehaviorBoundaryEvent).AttachedTo = "A2"

	m, _ := newTestMigrator(t, src, tgt)
	in := newInstance("pi-1", "b:1", "b").
		exec(runtime.Execution{ID: "e-a", ParentID: "pi-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsScope: true, IsActive: true}).
		job(runtime.Job{ID: "j-t", Type: runtime.JobTimer, ExecutionID: "e-a", ActivityID: "T", JobDefinitionID: "timer:T", Config: "1h", DueDate: t0, ExceptionMessage: "boom"}).
		incident(runtime.Incident{ID: "inc-t", Type: "failedJob", ExecutionID: "e-a", ActivityID: "T", JobID: "j-t"})

	p := &plan.Plan{
		SourceDefinitionID: "b:1",
		TargetDefinitionID: "b:2",
		Instructions: []plan.Instruction{
			{SourceActivityID: "A", TargetActivityID: "A2"},
			{SourceActivityID: "T", TargetActivityID: "T2"},
		},
	}
	_, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)

	j := findJob(in.s, "pi-1", "j-t")
	require.NotNil(t, j)
	assert.Equal(t, "T2", j.ActivityID)
	assert.Equal(t, "timer:T2", j.JobDefinitionID)

	incidents := in.s.Incidents("pi-1")
	require.Len(t, incidents, 1)
	assert.Equal(t, "T2", incidents[0].ActivityID, "incident follows its job, not the job's scope")
	assert.Equal(t, "b:2", incidents[0].ProcessDefinitionID)
}

func asyncDefinitions(targetAsync bool) (*definition.ProcessDefinition, *definition.ProcessDefinition) {
	src := definition.New("t:1", "t", 1)
	src.Root.Add("A", definition.BehaviorServiceTask).Async(true, false)
	tgt := definition.New("t:2", "t", 2)
	tgt.Root.Add("A2", definition.BehaviorServiceTask).Async(targetAsync, false)
	return src, tgt
}

func asyncInstance() *instance {
	return newInstance("pi-1", "t:1", "t").
		exec(runtime.Execution{ID: "e-t", ParentID: "pi-1", ActivityID: "A"}).
		job(runtime.Job{ID: "j-t", Type: runtime.JobAsyncContinuation, ExecutionID: "e-t", ActivityID: "A", JobDefinitionID: "async:A", Retries: 0, ExceptionMessage: "boom"}).
		incident(runtime.Incident{ID: "inc-t", Type: "failedJob", ExecutionID: "e-t", ActivityID: "A", JobID: "j-t"})
}

func TestMigrateTransitionInstance(t *testing.T) {
	src, tgt := asyncDefinitions(true)
	m, _ := newTestMigrator(t, src, tgt)
	in := asyncInstance()

	p := &plan.Plan{
		SourceDefinitionID: "t:1",
		TargetDefinitionID: "t:2",
		Instructions:       []plan.Instruction{{SourceActivityID: "A", TargetActivityID: "A2"}},
	}
	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)
	assert.Equal(t, KindTransition, res.Instance.Node("e-t").Kind)

	assert.Equal(t, "A2", in.s.Execution("e-t").ActivityID)
	j := findJob(in.s, "pi-1", "j-t")
	require.NotNil(t, j)
	assert.Equal(t, "A2", j.ActivityID)
	assert.Equal(t, "async:A2", j.JobDefinitionID)
	assert.Equal(t, "boom", j.ExceptionMessage)

	incidents := in.s.Incidents("pi-1")
	require.Len(t, incidents, 1)
	assert.Equal(t, "A2", incidents[0].ActivityID)
	assert.Equal(t, "t:2", incidents[0].ProcessDefinitionID)
}

func TestMigrateTransitionToSynchronousTargetFails(t *testing.T) {
	src, tgt := asyncDefinitions(false)
	m, _ := newTestMigrator(t, src, tgt)

	p := &plan.Plan{
		SourceDefinitionID: "t:1",
		TargetDefinitionID: "t:2",
		Instructions:       []plan.Instruction{{SourceActivityID: "A", TargetActivityID: "A2"}},
	}
	_, err := m.Migrate(context.Background(), asyncInstance().s, p, "pi-1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot migrate transition instance 'e-t':\n\t\ttarget activity 'A2' is not asynchronous")
}

func TestMigrateUnmappedTransitionIsRemoved(t *testing.T) {
	src, tgt := asyncDefinitions(true)
	m, _ := newTestMigrator(t, src, tgt)
	in := asyncInstance()

	_, err := m.Migrate(context.Background(), in.s, &plan.Plan{SourceDefinitionID: "t:1", TargetDefinitionID: "t:2"}, "pi-1", Options{})
	require.NoError(t, err)
	assert.Nil(t, in.s.Execution("e-t"))
	assert.Empty(t, in.s.Jobs("pi-1"))
	assert.Empty(t, in.s.Incidents("pi-1"))
}

func TestParseSkipsTransitionWithoutAsyncJob(t *testing.T) {
	src, tgt := asyncDefinitions(true)
	in := newInstance("pi-1", "t:1", "t").
		exec(runtime.Execution{ID: "e-t", ParentID: "pi-1", ActivityID: "A"})

	parser := NewParser(definition.NewRepository(src, tgt))
	mpi, report, err := parser.Parse(in.s, &plan.Plan{SourceDefinitionID: "t:1", TargetDefinitionID: "t:2"}, "pi-1")
	require.NoError(t, err)
	assert.False(t, report.HasFailures())
	assert.Nil(t, mpi.Node("e-t"))
	assert.Len(t, mpi.Nodes(), 1)
}

func compensationDefinitions() (*definition.ProcessDefinition, *definition.ProcessDefinition) {
	src := definition.New("k:1", "k", 1)
	src.Root.Add("S", definition.BehaviorSubProcess).Add("inner", definition.BehaviorUserTask)
	src.Root.Add("A", definition.BehaviorUserTask)
	tgt := definition.New("k:2", "k", 2)
	tgt.Root.Add("S", definition.BehaviorSubProcess).Add("inner", definition.BehaviorUserTask)
	tgt.Root.Add("A", definition.BehaviorUserTask)
	return src, tgt
}

func compensationInstance() *instance {
	return newInstance("pi-1", "k:1", "k").
		exec(runtime.Execution{ID: "e-a", ParentID: "pi-1", ActivityID: "A", ActivityInstanceID: "ai-a", IsActive: true}).
		exec(runtime.Execution{ID: "e-es", ParentID: "pi-1", ActivityID: "S", IsScope: true, IsEventScope: true}).
		subscription(runtime.EventSubscription{ID: "sub-s", Type: runtime.SubscriptionCompensate, ExecutionID: "pi-1", ActivityID: "S"}).
		subscription(runtime.EventSubscription{ID: "sub-in", Type: runtime.SubscriptionCompensate, ExecutionID: "e-es", ActivityID: "inner"}).
		variable(runtime.Variable{ID: "v-es", ExecutionID: "e-es", Name: "snapshot", Value: "1"})
}

func TestMigrateCompensationEventScope(t *testing.T) {
	src, tgt := compensationDefinitions()
	m, _ := newTestMigrator(t, src, tgt)
	in := compensationInstance()

	p := &plan.Plan{
		SourceDefinitionID: "k:1",
		TargetDefinitionID: "k:2",
		Instructions: []plan.Instruction{
			{SourceActivityID: "A", TargetActivityID: "A"},
			{SourceActivityID: "S", TargetActivityID: "S"},
			{SourceActivityID: "inner", TargetActivityID: "inner"},
		},
	}
	res, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)

	n := res.Instance.Node("e-es")
	require.NotNil(t, n)
	assert.Equal(t, KindEventScope, n.Kind)
	assert.Equal(t, "pi-1", n.ParentID)

	assert.Len(t, in.s.EventSubscriptions("pi-1"), 2)
	assert.Len(t, in.s.Variables("pi-1"), 1)
	assert.Equal(t, "k:2", in.s.Execution("e-es").ProcessDefinitionID)
	assert.True(t, in.s.Execution("e-es").IsEventScope)
}

func TestMigrateDropsUnmappedCompensation(t *testing.T) {
	src, tgt := compensationDefinitions()
	m, _ := newTestMigrator(t, src, tgt)
	in := compensationInstance()

	p := &plan.Plan{
		SourceDefinitionID: "k:1",
		TargetDefinitionID: "k:2",
		Instructions:       []plan.Instruction{{SourceActivityID: "A", TargetActivityID: "A"}},
	}
	_, err := m.Migrate(context.Background(), in.s, p, "pi-1", Options{})
	require.NoError(t, err)

	assert.Nil(t, in.s.Execution("e-es"))
	assert.Empty(t, in.s.EventSubscriptions("pi-1"))
	assert.Empty(t, in.s.Variables("pi-1"))
	assert.NotNil(t, in.s.Execution("e-a"))
}
