package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flowmig/internal/runtime"
)

// Scenario is one end-to-end migration: definitions to deploy, running
// instances to import, a plan, the expected outcome and assertions on the
// resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions lists CUE files or directories to compile and deploy.
	// Paths are relative to the scenario file location.
	Definitions []string `yaml:"definitions,omitempty"`

	// Source is inline CUE deployed alongside Definitions.
	Source string `yaml:"source,omitempty"`

	// InstanceFiles lists runtime fixture files to import, relative to the
	// scenario file.
	InstanceFiles []string `yaml:"instance_files,omitempty"`

	// Instances are inline runtime fixtures.
	Instances []*runtime.Fixture `yaml:"instances,omitempty"`

	Plan    PlanSpec    `yaml:"plan"`
	Migrate MigrateStep `yaml:"migrate"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir is the directory relative paths resolve against.
	dir string
}

// PlanSpec describes the migration plan, either as a JSON plan document or
// built from definitions.
type PlanSpec struct {
	// File is a JSON plan document relative to the scenario file.
	File string `yaml:"file,omitempty"`

	Source string `yaml:"source,omitempty"`
	Target string `yaml:"target,omitempty"`

	// MapEqual adds the identity generator's instructions.
	MapEqual bool `yaml:"map_equal,omitempty"`
	// UpdateEventTriggers sets the update flag on generated instructions.
	UpdateEventTriggers bool `yaml:"update_event_triggers,omitempty"`

	Instructions []InstructionSpec `yaml:"instructions,omitempty"`

	// SkipValidation builds the plan without plan validation.
	SkipValidation bool `yaml:"skip_validation,omitempty"`
}

// InstructionSpec is one explicit mapping.
type InstructionSpec struct {
	Source             string `yaml:"source"`
	Target             string `yaml:"target"`
	UpdateEventTrigger bool   `yaml:"update_event_trigger,omitempty"`
}

// MigrateStep selects the instances to migrate and the expected outcome.
type MigrateStep struct {
	// Instances defaults to every instance of the plan's source definition.
	Instances []string `yaml:"instances,omitempty"`

	DryRun bool `yaml:"dry_run,omitempty"`

	// Allowed restricts the plans the batch may run, as "source->target"
	// definition id globs. Empty allows every plan.
	Allowed []string `yaml:"allowed,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect is the expected result of the migration step.
type Expect struct {
	// Outcome is one of the Outcome constants.
	Outcome string `yaml:"outcome"`

	// Failures must each appear in the error text.
	Failures []string `yaml:"failures,omitempty"`
}

// Outcomes of a migration step.
const (
	OutcomeMigrated         = "migrated"
	OutcomeInvalidPlan      = "invalid_plan"
	OutcomeValidationFailed = "validation_failed"
	OutcomeRejected         = "rejected"
	OutcomeEngineError      = "engine_error"
	OutcomeError            = "error"
)

var validOutcomes = map[string]bool{
	OutcomeMigrated:         true,
	OutcomeInvalidPlan:      true,
	OutcomeValidationFailed: true,
	OutcomeRejected:         true,
	OutcomeEngineError:      true,
	OutcomeError:            true,
}

// Assertion validates the final state of one instance.
type Assertion struct {
	// Type specifies the assertion type:
	// - "activity_tree": the rendered activity instance tree equals Tree
	// - "record": exactly one record of Kind matches Where and has Expect
	// - "record_count": Count records of Kind match Where
	// - "unchanged": the instance fingerprint did not change
	Type string `yaml:"type"`

	// Instance is the process instance id.
	Instance string `yaml:"instance"`

	// Kind is the record kind (used by record and record_count):
	// execution, job, event_subscription, task, variable, incident.
	Kind string `yaml:"kind,omitempty"`

	// Where filters records by field (subset match).
	Where map[string]string `yaml:"where,omitempty"`

	// Expect contains expected field values (subset match).
	Expect map[string]string `yaml:"expect,omitempty"`

	// Count is the expected number of matches (used by record_count).
	Count int `yaml:"count,omitempty"`

	// Tree is the expected tree rendering (used by activity_tree).
	Tree string `yaml:"tree,omitempty"`
}

// Assertion type constants.
const (
	AssertActivityTree = "activity_tree"
	AssertRecord       = "record"
	AssertRecordCount  = "record_count"
	AssertUnchanged    = "unchanged"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses scenario YAML. Relative paths resolve against dir.
func ParseScenario(data []byte, dir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = dir

	for _, f := range scenario.Instances {
		if err := f.Normalize(); err != nil {
			return nil, fmt.Errorf("invalid scenario: %w", err)
		}
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// resolve returns p relative to the scenario directory.
func (s *Scenario) resolve(p string) string {
	if filepath.IsAbs(p) || s.dir == "" {
		return p
	}
	return filepath.Join(s.dir, p)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Definitions) == 0 && s.Source == "" {
		return fmt.Errorf("definitions or source is required")
	}
	if len(s.InstanceFiles) == 0 && len(s.Instances) == 0 {
		return fmt.Errorf("instance_files or instances is required")
	}

	for _, p := range s.Definitions {
		if _, err := os.Stat(s.resolve(p)); os.IsNotExist(err) {
			return fmt.Errorf("definitions not found: %s", p)
		}
	}
	for _, p := range s.InstanceFiles {
		if _, err := os.Stat(s.resolve(p)); os.IsNotExist(err) {
			return fmt.Errorf("instance file not found: %s", p)
		}
	}

	if err := validatePlan(s.Plan); err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	if !validOutcomes[s.Migrate.Expect.Outcome] {
		return fmt.Errorf("migrate.expect: unknown outcome %q", s.Migrate.Expect.Outcome)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validatePlan(p PlanSpec) error {
	if p.File != "" {
		if p.Source != "" || p.Target != "" || p.MapEqual || len(p.Instructions) > 0 {
			return fmt.Errorf("file cannot be combined with source, target or instructions")
		}
		return nil
	}
	if p.Source == "" || p.Target == "" {
		return fmt.Errorf("source and target are required without file")
	}
	if !p.MapEqual && len(p.Instructions) == 0 {
		return fmt.Errorf("map_equal or instructions is required")
	}
	for i, in := range p.Instructions {
		if in.Source == "" || in.Target == "" {
			return fmt.Errorf("instructions[%d]: source and target are required", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Instance == "" {
		return fmt.Errorf("assertions[%d]: instance is required", index)
	}

	switch a.Type {
	case AssertActivityTree:
		if a.Tree == "" {
			return fmt.Errorf("assertions[%d]: tree is required for activity_tree", index)
		}
	case AssertRecord:
		if !validKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown record kind %q", index, a.Kind)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for record", index)
		}
	case AssertRecordCount:
		if !validKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown record kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for record_count", index)
		}
	case AssertUnchanged:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
