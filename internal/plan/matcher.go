package plan

import (
	"fmt"
	"slices"

	"github.com/roach88/flowmig/internal/definition"
)

// ActivityMatcher decides whether a source activity corresponds to a target
// activity.
//
// Implementations must be deterministic and match at most one target per
// source activity. Generators rely on this and do not check it.
type ActivityMatcher interface {
	Matches(source, target *definition.Activity) bool
}

// MatcherFunc adapts a function to ActivityMatcher.
type MatcherFunc func(source, target *definition.Activity) bool

// Matches calls f.
func (f MatcherFunc) Matches(source, target *definition.Activity) bool {
	return f(source, target)
}

// IDMatcher matches activities with identical ids.
type IDMatcher struct{}

// Matches reports whether both activities exist and share an id.
func (IDMatcher) Matches(source, target *definition.Activity) bool {
	return source != nil && target != nil && source.ID == target.ID
}

// ActivityValidator is a per-activity policy applied to both sides of a
// candidate instruction.
type ActivityValidator interface {
	Valid(a *definition.Activity) bool
}

// SupportedActivityValidator accepts activities of the listed behaviors.
type SupportedActivityValidator struct {
	Behaviors []definition.Behavior
}

// Valid reports whether a's behavior is supported.
func (v SupportedActivityValidator) Valid(a *definition.Activity) bool {
	return a != nil && slices.Contains(v.Behaviors, a.Behavior)
}

// DefaultSupportedBehaviors are the behaviors migratable out of the box.
var DefaultSupportedBehaviors = []definition.Behavior{definition.BehaviorUserTask}

// DefaultActivityValidators returns the default policy: user tasks only.
func DefaultActivityValidators() []ActivityValidator {
	return []ActivityValidator{SupportedActivityValidator{Behaviors: DefaultSupportedBehaviors}}
}

// SupportedBehaviors returns a policy accepting the named behaviors. No
// names means DefaultActivityValidators.
func SupportedBehaviors(names ...string) ([]ActivityValidator, error) {
	if len(names) == 0 {
		return DefaultActivityValidators(), nil
	}
	behaviors := make([]definition.Behavior, 0, len(names))
	for _, name := range names {
		b := definition.Behavior(name)
		if !definition.ValidBehaviors[b] {
			return nil, fmt.Errorf("unknown activity behavior %q", name)
		}
		behaviors = append(behaviors, b)
	}
	return []ActivityValidator{SupportedActivityValidator{Behaviors: behaviors}}, nil
}

func validForAll(validators []ActivityValidator, a *definition.Activity) bool {
	for _, v := range validators {
		if !v.Valid(a) {
			return false
		}
	}
	return true
}
