package definition

import (
	"encoding/json"
	"fmt"
)

// definitionJSON is the persisted wire form of a ProcessDefinition.
type definitionJSON struct {
	ID           string            `json:"id"`
	Key          string            `json:"key"`
	Version      int               `json:"version"`
	Name         string            `json:"name,omitempty"`
	Declarations []declarationJSON `json:"events,omitempty"`
	Activities   []activityJSON    `json:"activities,omitempty"`
}

type activityJSON struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Type         Behavior          `json:"type"`
	Scope        bool              `json:"scope,omitempty"`
	AsyncBefore  bool              `json:"asyncBefore,omitempty"`
	AsyncAfter   bool              `json:"asyncAfter,omitempty"`
	AttachedTo   string            `json:"attachedTo,omitempty"`
	Declarations []declarationJSON `json:"events,omitempty"`
	Activities   []activityJSON    `json:"activities,omitempty"`
}

type declarationJSON struct {
	Kind     EventKind `json:"kind"`
	Activity string    `json:"activity"`
	Name     string    `json:"name,omitempty"`
	Timer    string    `json:"timer,omitempty"`
}

// MarshalJSON encodes the definition tree in declaration order.
func (d *ProcessDefinition) MarshalJSON() ([]byte, error) {
	out := definitionJSON{
		ID:           d.ID,
		Key:          d.Key,
		Version:      d.Version,
		Name:         d.Name,
		Declarations: encodeDeclarations(d.Root.Declarations),
		Activities:   encodeActivities(d.Root.Children),
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the definition tree, restoring flow scopes and the
// activity index.
func (d *ProcessDefinition) UnmarshalJSON(data []byte) error {
	var in definitionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode definition: %w", err)
	}
	def := New(in.ID, in.Key, in.Version)
	def.Name = in.Name
	for _, decl := range decodeDeclarations(in.Declarations) {
		def.Root.Declare(decl)
	}
	decodeActivities(def.Root, in.Activities)
	*d = *def
	// Activities point at def; repoint them at d so Definition() stays valid.
	d.Root.definition = d
	for _, a := range d.Activities() {
		a.definition = d
	}
	return nil
}

func encodeActivities(activities []*Activity) []activityJSON {
	if len(activities) == 0 {
		return nil
	}
	out := make([]activityJSON, 0, len(activities))
	for _, a := range activities {
		out = append(out, activityJSON{
			ID:           a.ID,
			Name:         a.Name,
			Type:         a.Behavior,
			Scope:        a.Scope,
			AsyncBefore:  a.AsyncBefore,
			AsyncAfter:   a.AsyncAfter,
			AttachedTo:   a.AttachedTo,
			Declarations: encodeDeclarations(a.Declarations),
			Activities:   encodeActivities(a.Children),
		})
	}
	return out
}

func encodeDeclarations(decls []EventDeclaration) []declarationJSON {
	if len(decls) == 0 {
		return nil
	}
	out := make([]declarationJSON, 0, len(decls))
	for _, decl := range decls {
		out = append(out, declarationJSON{
			Kind:     decl.Kind,
			Activity: decl.ActivityID,
			Name:     decl.EventName,
			Timer:    decl.TimerExpression,
		})
	}
	return out
}

func decodeActivities(parent *Activity, in []activityJSON) {
	for _, aj := range in {
		child := parent.Add(aj.ID, aj.Type)
		child.Name = aj.Name
		child.AsyncBefore = aj.AsyncBefore
		child.AsyncAfter = aj.AsyncAfter
		child.AttachedTo = aj.AttachedTo
		for _, decl := range decodeDeclarations(aj.Declarations) {
			child.Declare(decl)
		}
		child.Scope = child.Scope || aj.Scope
		decodeActivities(child, aj.Activities)
	}
}

func decodeDeclarations(in []declarationJSON) []EventDeclaration {
	out := make([]EventDeclaration, 0, len(in))
	for _, dj := range in {
		out = append(out, EventDeclaration{
			Kind:            dj.Kind,
			ActivityID:      dj.Activity,
			EventName:       dj.Name,
			TimerExpression: dj.Timer,
		})
	}
	return out
}
