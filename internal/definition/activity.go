package definition

// Activity is a node of the static definition tree.
type Activity struct {
	ID          string
	Name        string
	Behavior    Behavior
	Scope       bool
	AsyncBefore bool
	AsyncAfter  bool

	// AttachedTo names the sibling activity a boundary event is attached to.
	AttachedTo string

	// Declarations are the event triggers this activity is the event scope of.
	Declarations []EventDeclaration

	FlowScope *Activity
	Children  []*Activity

	definition *ProcessDefinition
}

// Add declares a child activity and returns it. Containers and the root are
// the only sensible receivers; Validate reports anything else. A duplicate id
// is recorded and reported by Validate.
func (a *Activity) Add(id string, behavior Behavior) *Activity {
	child := &Activity{
		ID:         id,
		Behavior:   behavior,
		Scope:      behavior.IsContainer(),
		FlowScope:  a,
		definition: a.definition,
	}
	a.Children = append(a.Children, child)
	if a.definition != nil {
		a.definition.register(child)
	}
	return child
}

// Declare adds an event declaration and turns the activity into a scope.
func (a *Activity) Declare(decl EventDeclaration) *Activity {
	a.Declarations = append(a.Declarations, decl)
	a.Scope = true
	return a
}

// Async marks the activity as an asynchronous continuation point.
func (a *Activity) Async(before, after bool) *Activity {
	a.AsyncBefore = before
	a.AsyncAfter = after
	return a
}

// FindChild returns the direct child with the given id, or nil.
func (a *Activity) FindChild(id string) *Activity {
	if a == nil {
		return nil
	}
	for _, child := range a.Children {
		if child.ID == id {
			return child
		}
	}
	return nil
}

// IsRoot reports whether a is the definition root.
func (a *Activity) IsRoot() bool {
	return a != nil && a.FlowScope == nil
}

// IsScope reports whether a can own runtime state of its own.
func (a *Activity) IsScope() bool {
	return a != nil && a.Scope
}

// IsAsync reports whether a declares an asynchronous continuation.
func (a *Activity) IsAsync() bool {
	return a != nil && (a.AsyncBefore || a.AsyncAfter)
}

// Definition returns the definition a belongs to.
func (a *Activity) Definition() *ProcessDefinition {
	return a.definition
}

// Declaration returns the declaration of the given kind triggered by
// activityID, or nil.
func (a *Activity) Declaration(kind EventKind, activityID string) *EventDeclaration {
	if a == nil {
		return nil
	}
	for i := range a.Declarations {
		if a.Declarations[i].Kind == kind && a.Declarations[i].ActivityID == activityID {
			return &a.Declarations[i]
		}
	}
	return nil
}

// DeclarationsOf returns the declarations of the given kinds in declaration order.
func (a *Activity) DeclarationsOf(kinds ...EventKind) []*EventDeclaration {
	var out []*EventDeclaration
	for i := range a.Declarations {
		for _, k := range kinds {
			if a.Declarations[i].Kind == k {
				out = append(out, &a.Declarations[i])
				break
			}
		}
	}
	return out
}

// Ancestors returns the flow-scope chain above a, nearest first, ending with
// the root. The root has no ancestors.
func (a *Activity) Ancestors() []*Activity {
	var out []*Activity
	for s := a.FlowScope; s != nil; s = s.FlowScope {
		out = append(out, s)
	}
	return out
}

// IsAncestorOf reports whether a is a strict flow-scope ancestor of other.
func (a *Activity) IsAncestorOf(other *Activity) bool {
	if a == nil || other == nil {
		return false
	}
	for s := other.FlowScope; s != nil; s = s.FlowScope {
		if s == a {
			return true
		}
	}
	return false
}

func (a *Activity) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.ID
}
