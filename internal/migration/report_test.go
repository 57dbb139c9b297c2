package migration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/flowmig/internal/definition"
)

func TestReportString(t *testing.T) {
	r := NewReport("pi-1")
	r.AddFailure("process instance contains not migrated jobs: [%s]", "j-1")
	r.ForInstance(&MigratingInstance{ID: "ai-a", Kind: KindActivity, ActivityID: "A"}).
		AddFailure("cannot become a subordinate of non-scope activity '%s'", "B")
	r.ForInstance(&MigratingInstance{ID: "e-t", Kind: KindTransition, ActivityID: "T"})
	r.ForInstance(&MigratingInstance{ID: "e-es", Kind: KindEventScope, ActivityID: "S"}).
		AddFailure("event scope instance must stay in flow scope 'p' but target activity 'x' is not a child of it")

	assert.True(t, r.HasFailures())
	assert.Equal(t, 3, r.FailureCount())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "instance_report", []byte(r.String()))
}

func TestReportForInstanceReusesSection(t *testing.T) {
	r := NewReport("pi-1")
	n := &MigratingInstance{ID: "ai-a", Kind: KindActivity}
	r.ForInstance(n).AddFailure("one")
	r.ForInstance(n).AddFailure("two")

	assert.Len(t, r.Instances, 1)
	assert.Equal(t, []string{"one", "two"}, r.Instances[0].Failures)
}

func TestEmptyReport(t *testing.T) {
	r := NewReport("pi-1")
	r.ForInstance(&MigratingInstance{ID: "ai-a", Kind: KindActivity})
	assert.False(t, r.HasFailures())
	assert.Equal(t, "Cannot migrate process instance 'pi-1':", r.String())
}

func TestErrorHelpers(t *testing.T) {
	verr := &ValidationError{Report: NewReport("pi-1")}
	eerr := engineError("pi-1", "ai-a", "cannot attach to transition instance %s", "e-t")
	merr := newMigrationError(ErrCodeInstanceNotFound, "pi-1", "process instance %s does not exist", "pi-1")

	wrapped := fmt.Errorf("batch: %w", merr)
	assert.True(t, IsUserError(wrapped))
	assert.Equal(t, ErrCodeInstanceNotFound, Code(wrapped))
	assert.False(t, IsValidationError(wrapped))

	assert.True(t, IsValidationError(fmt.Errorf("x: %w", verr)))
	assert.True(t, IsEngineError(eerr))
	assert.False(t, IsEngineError(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), Code(errors.New("plain")))

	assert.Equal(t, "INSTANCE_NOT_FOUND: process instance pi-1 does not exist (process_instance=pi-1)", merr.Error())
	assert.Equal(t, "migration engine failure: cannot attach to transition instance e-t (process_instance=pi-1, activity_instance=ai-a)", eerr.Error())
	assert.Equal(t, "MISSING_PLAN: migration plan is required", newMigrationError(ErrCodeMissingPlan, "", "migration plan is required").Error())
}

func TestCheckRequest(t *testing.T) {
	assert.Equal(t, ErrCodeMissingPlan, Code(CheckRequest(nil, []string{"pi-1"})))
	assert.Equal(t, ErrCodeMissingInstances, Code(CheckRequest(&planFixture, nil)))
	assert.Equal(t, ErrCodeMissingInstances, Code(CheckRequest(&planFixture, []string{"pi-1", ""})))
	assert.NoError(t, CheckRequest(&planFixture, []string{"pi-1"}))
}

func TestDependentString(t *testing.T) {
	decl := definition.EventDeclaration{Kind: definition.EventTimer, ActivityID: "B", TimerExpression: "1h"}
	assert.Equal(t, "emerge job for B", (&Dependent{Kind: DependentJob, Decision: Emerge, Declaration: &decl}).String())
	assert.Equal(t, "", (&Dependent{Kind: DependentJob, Decision: Emerge, Declaration: &decl}).ID())
}
