package plan

import (
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowmig/internal/definition"
)

// v1: review, fulfil{pack, packTimeout}, notify(service)
func sourceDefinition() *definition.ProcessDefinition {
	def := definition.New("order:1", "order", 1)
	def.Root.Add("review", definition.BehaviorUserTask)
	fulfil := def.Root.Add("fulfil", definition.BehaviorSubProcess)
	fulfil.Add("pack", definition.BehaviorUserTask)
	fulfil.Add("packTimeout", definition.BehaviorBoundaryEvent).AttachedTo = "pack"
	def.Root.Add("notify", definition.BehaviorServiceTask)
	return def
}

// v2: review, approve, fulfil{pack, label}, notify(service)
func targetDefinition() *definition.ProcessDefinition {
	def := definition.New("order:2", "order", 2)
	def.Root.Add("review", definition.BehaviorUserTask)
	def.Root.Add("approve", definition.BehaviorUserTask)
	fulfil := def.Root.Add("fulfil", definition.BehaviorSubProcess)
	fulfil.Add("pack", definition.BehaviorUserTask)
	fulfil.Add("label", definition.BehaviorUserTask)
	def.Root.Add("notify", definition.BehaviorServiceTask)
	return def
}

func TestPlanInstructionForFirstMatch(t *testing.T) {
	p := &Plan{Instructions: []Instruction{
		{SourceActivityID: "A", TargetActivityID: "B"},
		{SourceActivityID: "A", TargetActivityID: "C"},
	}}

	in, ok := p.InstructionFor("A")
	require.True(t, ok)
	assert.Equal(t, "B", in.TargetActivityID)
	assert.Len(t, p.InstructionsFor("A"), 2)

	_, ok = p.InstructionFor("X")
	assert.False(t, ok)
}

func TestInstructionString(t *testing.T) {
	assert.Equal(t, "A -> B", Instruction{SourceActivityID: "A", TargetActivityID: "B"}.String())
	assert.Equal(t, "A -> B (update event trigger)",
		Instruction{SourceActivityID: "A", TargetActivityID: "B", UpdateEventTrigger: true}.String())
}

func TestIdentityGenerator(t *testing.T) {
	got := IdentityGenerator{}.Generate(sourceDefinition(), targetDefinition())

	// fulfil is an equal scope: recursed into, not mapped itself.
	// notify is not a user task. packTimeout has no counterpart.
	assert.Equal(t, []Instruction{
		{SourceActivityID: "review", TargetActivityID: "review"},
		{SourceActivityID: "pack", TargetActivityID: "pack"},
	}, got)
}

func TestIdentityGeneratorDoesNotCrossScopes(t *testing.T) {
	src := definition.New("p:1", "p", 1)
	src.Root.Add("S", definition.BehaviorSubProcess).Add("A", definition.BehaviorUserTask)
	tgt := definition.New("p:2", "p", 2)
	tgt.Root.Add("A", definition.BehaviorUserTask)

	assert.Empty(t, IdentityGenerator{}.Generate(src, tgt))
}

func TestIdentityGeneratorEmptyScopesAreNotEqual(t *testing.T) {
	src := definition.New("p:1", "p", 1)
	src.Root.Add("S", definition.BehaviorSubProcess)
	tgt := definition.New("p:2", "p", 2)
	tgt.Root.Add("S", definition.BehaviorSubProcess).Add("A", definition.BehaviorUserTask)

	assert.False(t, equalScopes(src.FindActivity("S"), tgt.FindActivity("S")))
	assert.True(t, equalScopes(src.Root, tgt.Root))
	assert.Empty(t, IdentityGenerator{}.Generate(src, tgt))
}

func TestExhaustiveGenerator(t *testing.T) {
	gen := ExhaustiveGenerator{
		Validators: []ActivityValidator{SupportedActivityValidator{Behaviors: []definition.Behavior{
			definition.BehaviorUserTask, definition.BehaviorSubProcess,
		}}},
	}

	got := gen.Generate(sourceDefinition(), targetDefinition())
	assert.Equal(t, []Instruction{
		{SourceActivityID: "review", TargetActivityID: "review"},
		{SourceActivityID: "fulfil", TargetActivityID: "fulfil"},
		{SourceActivityID: "pack", TargetActivityID: "pack"},
	}, got)
}

func TestExhaustiveGeneratorCustomMatcher(t *testing.T) {
	src := definition.New("p:1", "p", 1)
	src.Root.Add("taskA", definition.BehaviorUserTask)
	tgt := definition.New("p:2", "p", 2)
	tgt.Root.Add("taskB", definition.BehaviorUserTask)

	renamed := MatcherFunc(func(s, t *definition.Activity) bool {
		return s.ID == "taskA" && t.ID == "taskB"
	})
	got := ExhaustiveGenerator{Matcher: renamed}.Generate(src, tgt)
	assert.Equal(t, []Instruction{{SourceActivityID: "taskA", TargetActivityID: "taskB"}}, got)
}

func TestBuilderMapEqualActivitiesWithUpdate(t *testing.T) {
	p, err := NewBuilder(sourceDefinition(), targetDefinition()).
		UpdateEventTriggers().
		MapEqualActivities().
		MapActivities("review", "approve").
		Build()
	require.Error(t, err, "review is mapped twice")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Nil(t, p)

	p, err = NewBuilder(sourceDefinition(), targetDefinition()).
		UpdateEventTriggers().
		MapEqualActivities().
		Build()
	require.NoError(t, err)
	assert.Equal(t, "order:1", p.SourceDefinitionID)
	assert.Equal(t, "order:2", p.TargetDefinitionID)
	require.Len(t, p.Instructions, 2)
	for _, in := range p.Instructions {
		assert.True(t, in.UpdateEventTrigger)
	}
}

func TestBuilderUpdateEventTriggerAppliesToLastMapping(t *testing.T) {
	src := definition.New("p:1", "p", 1)
	src.Root.Add("A", definition.BehaviorUserTask)
	src.Root.Add("C", definition.BehaviorUserTask)
	tgt := definition.New("p:2", "p", 2)
	tgt.Root.Add("B", definition.BehaviorUserTask)
	tgt.Root.Add("D", definition.BehaviorUserTask)

	p, err := NewBuilder(src, tgt).
		MapActivities("A", "B").UpdateEventTrigger().
		MapActivities("C", "D").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []Instruction{
		{SourceActivityID: "A", TargetActivityID: "B", UpdateEventTrigger: true},
		{SourceActivityID: "C", TargetActivityID: "D"},
	}, p.Instructions)
}

func TestBuilderUpdateEventTriggerWithoutMapping(t *testing.T) {
	_, err := NewBuilder(sourceDefinition(), targetDefinition()).UpdateEventTrigger().Build()
	assert.True(t, errors.Is(err, ErrNoInstruction))
}

func TestValidatorScopeMismatch(t *testing.T) {
	// A sits inside S in v1 and at the top level in v2.
	src := definition.New("p:1", "p", 1)
	src.Root.Add("S", definition.BehaviorSubProcess).Add("A", definition.BehaviorUserTask)
	tgt := definition.New("p:2", "p", 2)
	tgt.Root.Add("A", definition.BehaviorUserTask)

	_, err := NewBuilder(src, tgt).MapActivities("A", "A").Build()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Report.Instructions, 1)
	assert.Equal(t, []string{
		"source activity A and target activity A are not contained in the same sub process",
	}, verr.Report.Instructions[0].Failures)
}

func TestValidatorRootsAreEqualRegardlessOfID(t *testing.T) {
	src := definition.New("p:1", "p", 1)
	src.Root.Add("S", definition.BehaviorSubProcess).Add("A", definition.BehaviorUserTask)
	tgt := definition.New("q:1", "q", 1)
	tgt.Root.Add("S", definition.BehaviorSubProcess).Add("B", definition.BehaviorUserTask)

	_, err := NewBuilder(src, tgt).MapActivities("A", "B").Build()
	assert.NoError(t, err)
}

func TestValidatorCollectsEverything(t *testing.T) {
	p := &Plan{
		SourceDefinitionID: "order:1",
		TargetDefinitionID: "order:9",
		Instructions: []Instruction{
			{SourceActivityID: "ghost", TargetActivityID: "review"},
			{SourceActivityID: "notify", TargetActivityID: "notify"},
			{SourceActivityID: "", TargetActivityID: "pack"},
			{SourceActivityID: "pack", TargetActivityID: "review"},
			{SourceActivityID: "review", TargetActivityID: "review"},
		},
	}

	report := NewValidator().Validate(sourceDefinition(), targetDefinition(), p)
	require.True(t, report.HasFailures())
	require.Len(t, report.Instructions, 5)
	assert.False(t, report.Instructions[4].HasFailures())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "plan_report", []byte(report.String()))
}

func TestValidatorDuplicateSources(t *testing.T) {
	p := &Plan{
		SourceDefinitionID: "order:1",
		TargetDefinitionID: "order:2",
		Instructions: []Instruction{
			{SourceActivityID: "review", TargetActivityID: "review"},
			{SourceActivityID: "review", TargetActivityID: "approve"},
		},
	}

	report := NewValidator().Validate(sourceDefinition(), targetDefinition(), p)
	assert.True(t, report.HasFailures())
	assert.Contains(t, report.Instructions[0].Failures, "source activity review is mapped by 2 instructions")

	v := NewValidator()
	v.AllowDuplicateSources = true
	assert.False(t, v.Validate(sourceDefinition(), targetDefinition(), p).HasFailures())
}

func TestDecodeDocument(t *testing.T) {
	p, err := Decode([]byte(`{
		"sourceProcessDefinitionId": "order:1",
		"targetProcessDefinitionId": "order:2",
		"instructions": [
			{"sourceActivityId": "A", "targetActivityId": "B", "updateEventTrigger": true},
			{"sourceActivityId": "C", "targetActivityId": "D"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "order:1", p.SourceDefinitionID)
	assert.Equal(t, []Instruction{
		{SourceActivityID: "A", TargetActivityID: "B", UpdateEventTrigger: true},
		{SourceActivityID: "C", TargetActivityID: "D"},
	}, p.Instructions)
}

func TestDecodeDocumentRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		errContains string
	}{
		{
			name:        "missing target",
			doc:         `{"sourceProcessDefinitionId": "a", "instructions": []}`,
			errContains: "targetProcessDefinitionId is required",
		},
		{
			name:        "extra field",
			doc:         `{"sourceProcessDefinitionId": "a", "targetProcessDefinitionId": "b", "instructions": [], "mode": "x"}`,
			errContains: "Additional property mode is not allowed",
		},
		{
			name:        "wrong flag type",
			doc:         `{"sourceProcessDefinitionId": "a", "targetProcessDefinitionId": "b", "instructions": [{"sourceActivityId": "A", "targetActivityId": "B", "updateEventTrigger": "yes"}]}`,
			errContains: "updateEventTrigger",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			var docErr *DocumentError
			require.ErrorAs(t, err, &docErr)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestEncodeDecodeDocument(t *testing.T) {
	p := &Plan{
		SourceDefinitionID: "order:1",
		TargetDefinitionID: "order:2",
		Instructions:       []Instruction{{SourceActivityID: "A", TargetActivityID: "B"}},
	}
	data, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestCheckDecodedPlan(t *testing.T) {
	src, tgt := sourceDefinition(), targetDefinition()

	ok := &Plan{
		SourceDefinitionID: "order:1",
		TargetDefinitionID: "order:2",
		Instructions:       []Instruction{{SourceActivityID: "review", TargetActivityID: "approve"}},
	}
	assert.NoError(t, Check(src, tgt, ok))

	bad := &Plan{
		SourceDefinitionID: "order:1",
		TargetDefinitionID: "order:2",
		Instructions:       []Instruction{{SourceActivityID: "review", TargetActivityID: "ghost"}},
	}
	var verr *ValidationError
	require.ErrorAs(t, Check(src, tgt, bad), &verr)
	assert.True(t, verr.Report.HasFailures())
}

func TestCheckWithActivityPolicy(t *testing.T) {
	src, tgt := sourceDefinition(), targetDefinition()
	p := &Plan{
		SourceDefinitionID: "order:1",
		TargetDefinitionID: "order:2",
		Instructions:       []Instruction{{SourceActivityID: "notify", TargetActivityID: "notify"}},
	}
	assert.Error(t, Check(src, tgt, p))

	policy, err := SupportedBehaviors("userTask", "serviceTask")
	require.NoError(t, err)
	assert.NoError(t, Check(src, tgt, p, policy...))
}

func TestSupportedBehaviors(t *testing.T) {
	policy, err := SupportedBehaviors()
	require.NoError(t, err)
	assert.Equal(t, DefaultActivityValidators(), policy)

	policy, err = SupportedBehaviors("serviceTask")
	require.NoError(t, err)
	require.Len(t, policy, 1)
	assert.True(t, policy[0].Valid(&definition.Activity{Behavior: definition.BehaviorServiceTask}))
	assert.False(t, policy[0].Valid(&definition.Activity{Behavior: definition.BehaviorUserTask}))

	_, err = SupportedBehaviors("gateway")
	assert.ErrorContains(t, err, `unknown activity behavior "gateway"`)
}

func TestBuilderActivityPolicyDrivesIdentityMapping(t *testing.T) {
	src, tgt := sourceDefinition(), targetDefinition()
	policy, err := SupportedBehaviors("userTask", "serviceTask")
	require.NoError(t, err)

	p, err := NewBuilder(src, tgt).WithActivityValidators(policy...).MapEqualActivities().Build()
	require.NoError(t, err)
	assert.Equal(t, []Instruction{
		{SourceActivityID: "review", TargetActivityID: "review"},
		{SourceActivityID: "pack", TargetActivityID: "pack"},
		{SourceActivityID: "notify", TargetActivityID: "notify"},
	}, p.Instructions)

	// An explicit leaf policy on the generator wins.
	p, err = NewBuilder(src, tgt).
		WithGenerator(IdentityGenerator{Leaf: DefaultActivityValidators()}).
		WithActivityValidators(policy...).
		MapEqualActivities().
		Build()
	require.NoError(t, err)
	assert.Len(t, p.Instructions, 2)
}
