package plan

import (
	"errors"

	"github.com/roach88/flowmig/internal/definition"
)

// ErrNoInstruction is returned by Build when UpdateEventTrigger was called
// before any mapping.
var ErrNoInstruction = errors.New("update event trigger requires a preceding mapping")

// Builder assembles a Plan between two definitions.
//
// Methods chain and record problems; Build reports them. A Builder is not
// safe for concurrent use.
type Builder struct {
	source *definition.ProcessDefinition
	target *definition.ProcessDefinition

	generator          Generator
	activityValidators []ActivityValidator

	instructions    []Instruction
	generated       []int
	updateGenerated bool
	err             error
}

// NewBuilder starts a plan from source to target using the identity
// generator and the default activity policy.
func NewBuilder(source, target *definition.ProcessDefinition) *Builder {
	return &Builder{
		source:             source,
		target:             target,
		generator:          IdentityGenerator{},
		activityValidators: DefaultActivityValidators(),
	}
}

// WithGenerator replaces the generator used by MapEqualActivities.
func (b *Builder) WithGenerator(g Generator) *Builder {
	b.generator = g
	return b
}

// WithActivityValidators replaces the activity policy used for validation.
// An identity generator without a leaf policy of its own uses it as well.
func (b *Builder) WithActivityValidators(validators ...ActivityValidator) *Builder {
	b.activityValidators = validators
	return b
}

// MapEqualActivities appends the generator's instructions.
func (b *Builder) MapEqualActivities() *Builder {
	g := b.generator
	if identity, ok := g.(IdentityGenerator); ok && identity.Leaf == nil {
		identity.Leaf = b.activityValidators
		g = identity
	}
	for _, in := range g.Generate(b.source, b.target) {
		b.generated = append(b.generated, len(b.instructions))
		b.instructions = append(b.instructions, in)
	}
	return b
}

// MapActivities appends one explicit instruction.
func (b *Builder) MapActivities(sourceActivityID, targetActivityID string) *Builder {
	b.instructions = append(b.instructions, Instruction{
		SourceActivityID: sourceActivityID,
		TargetActivityID: targetActivityID,
	})
	return b
}

// UpdateEventTrigger sets the update flag on the most recent instruction.
func (b *Builder) UpdateEventTrigger() *Builder {
	if len(b.instructions) == 0 {
		b.err = ErrNoInstruction
		return b
	}
	b.instructions[len(b.instructions)-1].UpdateEventTrigger = true
	return b
}

// UpdateEventTriggers sets the update flag on every generated instruction,
// including ones generated after this call.
func (b *Builder) UpdateEventTriggers() *Builder {
	b.updateGenerated = true
	return b
}

// Unvalidated returns the plan without validating it.
func (b *Builder) Unvalidated() (*Plan, error) {
	if b.err != nil {
		return nil, b.err
	}
	instructions := make([]Instruction, len(b.instructions))
	copy(instructions, b.instructions)
	if b.updateGenerated {
		for _, i := range b.generated {
			instructions[i].UpdateEventTrigger = true
		}
	}
	return &Plan{
		SourceDefinitionID: b.source.ID,
		TargetDefinitionID: b.target.ID,
		Instructions:       instructions,
	}, nil
}

// Build returns the plan after validating it exhaustively. Failures are
// returned as a *ValidationError carrying the complete report.
func (b *Builder) Build() (*Plan, error) {
	p, err := b.Unvalidated()
	if err != nil {
		return nil, err
	}
	report := NewValidator(b.activityValidators...).Validate(b.source, b.target, p)
	if report.HasFailures() {
		return nil, &ValidationError{Report: report}
	}
	return p, nil
}
