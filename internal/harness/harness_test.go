package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestGoldenScenarios(t *testing.T) {
	for _, name := range []string{"rename_task", "stop_at_failure"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

const twoVersions = `
name: inline
description: inline definitions
source: |
  process: p: {version: 1, activities: a: type: "userTask"}
  process: "p-v2": {key: "p", version: 2, activities: b: type: "userTask"}
instances:
  - process_instance: pi-1
    definition: p:1
    executions:
      - {id: pi-1, activity: p, activity_instance: pi-1, scope: true}
      - {id: e-1, parent: pi-1, activity: a, activity_instance: ai-1, active: true}
`

func runInline(t *testing.T, rest string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(twoVersions+rest), "")
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestRunMigratesInlineScenario(t *testing.T) {
	result := runInline(t, `
plan:
  source: p:1
  target: p:2
  instructions:
    - {source: a, target: b}
migrate:
  expect: {outcome: migrated}
assertions:
  - type: record
    instance: pi-1
    kind: execution
    where: {id: e-1}
    expect: {activity: b, definition: "p:2", active: "true"}
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"pi-1"}, result.Instances)
	assert.NotEqual(t, result.Before["pi-1"], result.After["pi-1"])
}

func TestRunReportsOutcomeMismatch(t *testing.T) {
	result := runInline(t, `
plan:
  source: p:1
  target: p:2
  instructions:
    - {source: a, target: b}
migrate:
  expect: {outcome: validation_failed}
`)
	assert.False(t, result.Pass)
	assert.Equal(t, OutcomeMigrated, result.Outcome)
	assert.Equal(t, []string{"outcome: expected validation_failed, got migrated"}, result.Errors)
}

func TestRunInvalidPlan(t *testing.T) {
	result := runInline(t, `
plan:
  source: p:1
  target: p:2
  instructions:
    - {source: a, target: ghost}
migrate:
  expect:
    outcome: invalid_plan
    failures: [ghost]
assertions:
  - type: unchanged
    instance: pi-1
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, result.Error, "Migration plan for process definition 'p:1' to 'p:2' is not valid")
}

func TestRunUnvalidatedPlanFailsPerInstance(t *testing.T) {
	result := runInline(t, `
plan:
  source: p:1
  target: p:2
  skip_validation: true
  instructions:
    - {source: a, target: ghost}
migrate:
  expect:
    outcome: validation_failed
    failures: ["target activity 'ghost' does not exist in process definition 'p:2'"]
assertions:
  - type: unchanged
    instance: pi-1
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunRejected(t *testing.T) {
	tests := []struct {
		name    string
		migrate string
		failure string
	}{
		{
			name:    "not authorized",
			migrate: "migrate:\n  allowed: [\"q:*->*\"]\n  expect: {outcome: rejected, failures: [migration not authorized]}\n",
			failure: "migration not authorized: p:1 -> p:2",
		},
		{
			name:    "unknown instance",
			migrate: "migrate:\n  instances: [pi-404]\n  expect: {outcome: rejected, failures: [INSTANCE_NOT_FOUND]}\n",
			failure: "pi-404",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runInline(t, "plan:\n  source: p:1\n  target: p:2\n  instructions:\n    - {source: a, target: b}\n"+tt.migrate)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Equal(t, OutcomeRejected, result.Outcome)
			assert.Contains(t, result.Error, tt.failure)
		})
	}
}

func TestRunSetupErrors(t *testing.T) {
	s, err := ParseScenario([]byte(twoVersions+`
plan:
  source: p:1
  target: p:9
  map_equal: true
migrate:
  expect: {outcome: migrated}
`), "")
	require.NoError(t, err)
	_, err = Run(s)
	assert.ErrorContains(t, err, "plan target")

	s, err = ParseScenario([]byte(`
name: broken
description: definitions do not compile
source: "process: p: {activities: {}}"
instances:
  - process_instance: pi-1
    definition: p:1
    executions:
      - {id: pi-1}
plan:
  source: p:1
  target: p:1
  map_equal: true
migrate:
  expect: {outcome: migrated}
`), "")
	require.NoError(t, err)
	_, err = Run(s)
	assert.ErrorContains(t, err, "failed to deploy definitions")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeMigrated, classify(nil))
	assert.Equal(t, OutcomeError, classify(assert.AnError))
}
