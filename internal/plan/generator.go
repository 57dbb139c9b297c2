package plan

import "github.com/roach88/flowmig/internal/definition"

// Generator produces instructions by walking two definitions.
type Generator interface {
	Generate(source, target *definition.ProcessDefinition) []Instruction
}

// IdentityGenerator walks both definitions in lock-step and maps activities
// that keep their id at the same nesting position.
//
// For each child of a source scope the target counterpart is looked up among
// the direct children of the corresponding target scope. Equal scopes are
// recursed into without an instruction of their own; leaf pairs that pass
// every Leaf validator get one instruction.
type IdentityGenerator struct {
	// Leaf decides which leaf activities are migratable. Nil means
	// DefaultActivityValidators.
	Leaf []ActivityValidator
}

// Generate implements Generator.
func (g IdentityGenerator) Generate(source, target *definition.ProcessDefinition) []Instruction {
	leaf := g.Leaf
	if leaf == nil {
		leaf = DefaultActivityValidators()
	}
	var out []Instruction
	var walk func(s, t *definition.Activity)
	walk = func(s, t *definition.Activity) {
		for _, sa := range s.Children {
			ta := t.FindChild(sa.ID)
			if ta == nil {
				continue
			}
			switch {
			case equalScopes(sa, ta):
				walk(sa, ta)
			case validForAll(leaf, sa) && validForAll(leaf, ta):
				out = append(out, Instruction{SourceActivityID: sa.ID, TargetActivityID: ta.ID})
			}
		}
	}
	walk(source.Root, target.Root)
	return out
}

// equalScopes reports whether two activities are containers of the same
// class that both hold children, or are both definition roots.
func equalScopes(s, t *definition.Activity) bool {
	if s.IsRoot() && t.IsRoot() {
		return true
	}
	return s.Behavior == t.Behavior &&
		s.Behavior.IsContainer() &&
		len(s.Children) > 0 && len(t.Children) > 0
}

// ExhaustiveGenerator tries every (source, target) child pair of
// corresponding scopes, emitting an instruction for each pair accepted by
// the Matcher and every activity validator. Matched containers are recursed
// into whether or not they were emitted themselves.
type ExhaustiveGenerator struct {
	Matcher    ActivityMatcher
	Validators []ActivityValidator
}

// Generate implements Generator.
func (g ExhaustiveGenerator) Generate(source, target *definition.ProcessDefinition) []Instruction {
	matcher := g.Matcher
	if matcher == nil {
		matcher = IDMatcher{}
	}
	validators := g.Validators
	if validators == nil {
		validators = DefaultActivityValidators()
	}

	var out []Instruction
	var walk func(s, t *definition.Activity)
	walk = func(s, t *definition.Activity) {
		for _, sa := range s.Children {
			for _, ta := range t.Children {
				if !matcher.Matches(sa, ta) {
					continue
				}
				if validForAll(validators, sa) && validForAll(validators, ta) {
					out = append(out, Instruction{SourceActivityID: sa.ID, TargetActivityID: ta.ID})
				}
				if sa.Behavior.IsContainer() && ta.Behavior.IsContainer() {
					walk(sa, ta)
				}
			}
		}
	}
	walk(source.Root, target.Root)
	return out
}
