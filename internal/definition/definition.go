package definition

import (
	"fmt"
	"strings"
)

// Behavior classifies what an activity does at runtime.
type Behavior string

const (
	BehaviorProcess                Behavior = "process"
	BehaviorSubProcess             Behavior = "subProcess"
	BehaviorEventSubProcess        Behavior = "eventSubProcess"
	BehaviorUserTask               Behavior = "userTask"
	BehaviorServiceTask            Behavior = "serviceTask"
	BehaviorReceiveTask            Behavior = "receiveTask"
	BehaviorBoundaryEvent          Behavior = "boundaryEvent"
	BehaviorIntermediateCatchEvent Behavior = "intermediateCatchEvent"
	BehaviorStartEvent             Behavior = "startEvent"
	BehaviorEndEvent               Behavior = "endEvent"
	BehaviorCompensationHandler    Behavior = "compensationHandler"
)

// ValidBehaviors lists every behavior accepted by the compiler and decoder.
var ValidBehaviors = map[Behavior]bool{
	BehaviorProcess:                true,
	BehaviorSubProcess:             true,
	BehaviorEventSubProcess:        true,
	BehaviorUserTask:               true,
	BehaviorServiceTask:            true,
	BehaviorReceiveTask:            true,
	BehaviorBoundaryEvent:          true,
	BehaviorIntermediateCatchEvent: true,
	BehaviorStartEvent:             true,
	BehaviorEndEvent:               true,
	BehaviorCompensationHandler:    true,
}

// IsContainer reports whether activities of this behavior hold child activities.
func (b Behavior) IsContainer() bool {
	switch b {
	case BehaviorProcess, BehaviorSubProcess, BehaviorEventSubProcess:
		return true
	default:
		return false
	}
}

// ProcessDefinition is one deployed version of a process model.
type ProcessDefinition struct {
	ID      string
	Key     string
	Version int
	Name    string

	// Root is the synthetic process activity. Root.ID == Key.
	Root *Activity

	index      map[string]*Activity
	duplicates []string
}

// New creates an empty definition with its root activity.
func New(id, key string, version int) *ProcessDefinition {
	def := &ProcessDefinition{
		ID:      id,
		Key:     key,
		Version: version,
		index:   make(map[string]*Activity),
	}
	def.Root = &Activity{
		ID:         key,
		Behavior:   BehaviorProcess,
		Scope:      true,
		definition: def,
	}
	def.index[key] = def.Root
	return def
}

// FindActivity returns the activity with the given id anywhere in the
// definition, the root included, or nil.
func (d *ProcessDefinition) FindActivity(id string) *Activity {
	if d == nil {
		return nil
	}
	return d.index[id]
}

// Activities returns every non-root activity in depth-first declaration order.
func (d *ProcessDefinition) Activities() []*Activity {
	var out []*Activity
	var walk func(a *Activity)
	walk = func(a *Activity) {
		for _, child := range a.Children {
			out = append(out, child)
			walk(child)
		}
	}
	walk(d.Root)
	return out
}

// Validate checks structural consistency: unique ids, known behaviors,
// boundary attachments that resolve to a sibling, and event declarations
// that are well formed.
func (d *ProcessDefinition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.ID) == "" {
		problems = append(problems, "definition id is required")
	}
	if strings.TrimSpace(d.Key) == "" {
		problems = append(problems, "definition key is required")
	}
	for _, id := range d.duplicates {
		problems = append(problems, fmt.Sprintf("duplicate activity id %q", id))
	}
	for _, a := range d.Activities() {
		if !ValidBehaviors[a.Behavior] {
			problems = append(problems, fmt.Sprintf("activity %q: unknown behavior %q", a.ID, a.Behavior))
		}
		if a.Behavior == BehaviorProcess {
			problems = append(problems, fmt.Sprintf("activity %q: behavior %q is reserved for the root", a.ID, a.Behavior))
		}
		if len(a.Children) > 0 && !a.Behavior.IsContainer() {
			problems = append(problems, fmt.Sprintf("activity %q: behavior %q cannot contain activities", a.ID, a.Behavior))
		}
		if a.AttachedTo != "" {
			host := a.FlowScope.FindChild(a.AttachedTo)
			if host == nil {
				problems = append(problems, fmt.Sprintf("activity %q: attached to unknown sibling %q", a.ID, a.AttachedTo))
			}
		}
	}
	for _, a := range append([]*Activity{d.Root}, d.Activities()...) {
		for _, decl := range a.Declarations {
			if err := decl.Validate(); err != nil {
				problems = append(problems, fmt.Sprintf("activity %q: %v", a.ID, err))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("definition %s: %s", d.ID, strings.Join(problems, "; "))
	}
	return nil
}

func (d *ProcessDefinition) register(a *Activity) {
	if _, exists := d.index[a.ID]; exists {
		d.duplicates = append(d.duplicates, a.ID)
		return
	}
	d.index[a.ID] = a
}

// String returns the definition id.
func (d *ProcessDefinition) String() string {
	return d.ID
}
