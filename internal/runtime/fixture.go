package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML form of one running process instance. Records inherit
// ProcessInstance and Definition unless they set their own.
//
//	process_instance: pi-1
//	definition: order:1
//	executions:
//	  - {id: pi-1, activity: order, activity_instance: pi-1, scope: true}
//	  - {id: e-1, parent: pi-1, activity: review, activity_instance: ai-1, active: true}
//	tasks:
//	  - {id: t-1, execution: e-1, activity: review}
type Fixture struct {
	ProcessInstance    string               `yaml:"process_instance"`
	Definition         string               `yaml:"definition"`
	Executions         []*Execution         `yaml:"executions"`
	Jobs               []*Job               `yaml:"jobs,omitempty"`
	EventSubscriptions []*EventSubscription `yaml:"event_subscriptions,omitempty"`
	Tasks              []*Task              `yaml:"tasks,omitempty"`
	Variables          []*Variable          `yaml:"variables,omitempty"`
	Incidents          []*Incident          `yaml:"incidents,omitempty"`
}

// LoadFixtureFile reads every fixture document in a YAML file.
func LoadFixtureFile(path string) ([]*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	fixtures, err := ParseFixtures(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fixtures, nil
}

// ParseFixtures decodes one or more YAML documents. Unknown fields are
// rejected.
func ParseFixtures(data []byte) ([]*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []*Fixture
	for {
		var f Fixture
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse fixture: %w", err)
		}
		if err := f.Normalize(); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	if len(out) == 0 {
		return nil, errors.New("parse fixture: no documents")
	}
	return out, nil
}

// Normalize fills inherited ids and checks references. ParseFixtures
// calls it for every document.
func (f *Fixture) Normalize() error {
	if f.ProcessInstance == "" {
		return errors.New("fixture: process_instance is required")
	}
	if f.Definition == "" {
		return fmt.Errorf("fixture %s: definition is required", f.ProcessInstance)
	}

	known := make(map[string]bool)
	for _, e := range f.Executions {
		if e.ID == "" {
			return fmt.Errorf("fixture %s: execution without id", f.ProcessInstance)
		}
		if known[e.ID] {
			return fmt.Errorf("fixture %s: duplicate execution %s", f.ProcessInstance, e.ID)
		}
		known[e.ID] = true
		fill(&e.ProcessInstanceID, f.ProcessInstance)
		fill(&e.ProcessDefinitionID, f.Definition)
	}
	if !known[f.ProcessInstance] {
		return fmt.Errorf("fixture %s: no execution with the process instance id", f.ProcessInstance)
	}
	for _, e := range f.Executions {
		if e.ParentID != "" && !known[e.ParentID] {
			return fmt.Errorf("fixture %s: execution %s has unknown parent %s", f.ProcessInstance, e.ID, e.ParentID)
		}
	}

	check := func(kind, id, execution string) error {
		if !known[execution] {
			return fmt.Errorf("fixture %s: %s %s references unknown execution %q", f.ProcessInstance, kind, id, execution)
		}
		return nil
	}
	for _, j := range f.Jobs {
		fill(&j.ProcessInstanceID, f.ProcessInstance)
		fill(&j.ProcessDefinitionID, f.Definition)
		if err := check("job", j.ID, j.ExecutionID); err != nil {
			return err
		}
	}
	for _, es := range f.EventSubscriptions {
		fill(&es.ProcessInstanceID, f.ProcessInstance)
		if err := check("event subscription", es.ID, es.ExecutionID); err != nil {
			return err
		}
	}
	for _, t := range f.Tasks {
		fill(&t.ProcessInstanceID, f.ProcessInstance)
		fill(&t.ProcessDefinitionID, f.Definition)
		if err := check("task", t.ID, t.ExecutionID); err != nil {
			return err
		}
	}
	for _, v := range f.Variables {
		fill(&v.ProcessInstanceID, f.ProcessInstance)
		if err := check("variable", v.ID, v.ExecutionID); err != nil {
			return err
		}
	}
	for _, in := range f.Incidents {
		fill(&in.ProcessInstanceID, f.ProcessInstance)
		fill(&in.ProcessDefinitionID, f.Definition)
		if err := check("incident", in.ID, in.ExecutionID); err != nil {
			return err
		}
	}
	return nil
}

// Apply adds the fixture's records to s.
func (f *Fixture) Apply(s *State) {
	for _, e := range f.Executions {
		c := *e
		s.AddExecution(&c)
	}
	for _, j := range f.Jobs {
		c := *j
		s.AddJob(&c)
	}
	for _, es := range f.EventSubscriptions {
		c := *es
		s.AddEventSubscription(&c)
	}
	for _, t := range f.Tasks {
		c := *t
		s.AddTask(&c)
	}
	for _, v := range f.Variables {
		c := *v
		s.AddVariable(&c)
	}
	for _, in := range f.Incidents {
		c := *in
		s.AddIncident(&c)
	}
}

// ExportFixture captures one process instance of s as a fixture.
func ExportFixture(s *State, processInstanceID string) (*Fixture, error) {
	pi := s.Execution(processInstanceID)
	if pi == nil {
		return nil, fmt.Errorf("process instance %s not found", processInstanceID)
	}
	f := &Fixture{
		ProcessInstance:    processInstanceID,
		Definition:         pi.ProcessDefinitionID,
		Executions:         cloneAll(s.Executions(processInstanceID)),
		Jobs:               cloneAll(s.Jobs(processInstanceID)),
		EventSubscriptions: cloneAll(s.EventSubscriptions(processInstanceID)),
		Tasks:              cloneAll(s.Tasks(processInstanceID)),
		Variables:          cloneAll(s.Variables(processInstanceID)),
		Incidents:          cloneAll(s.Incidents(processInstanceID)),
	}
	return f, nil
}

func fill(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
