package plan

import (
	"strings"

	"github.com/roach88/flowmig/internal/definition"
)

// InstructionValidator checks one instruction against both definitions and
// appends findings to r. Validators never stop the run; later validators
// must tolerate activities an earlier one found missing.
type InstructionValidator interface {
	Validate(source, target *definition.ProcessDefinition, in Instruction, r *InstructionReport)
}

// InstructionValidatorFunc adapts a function to InstructionValidator.
type InstructionValidatorFunc func(source, target *definition.ProcessDefinition, in Instruction, r *InstructionReport)

// Validate calls f.
func (f InstructionValidatorFunc) Validate(source, target *definition.ProcessDefinition, in Instruction, r *InstructionReport) {
	f(source, target, in, r)
}

// Validator runs instruction validators over a whole plan.
type Validator struct {
	Instructions []InstructionValidator

	// AllowDuplicateSources disables the duplicate-source check.
	AllowDuplicateSources bool
}

// NewValidator returns a validator with the default checks, in order:
// activity ids, existence, supported behaviors, same flow-scope ancestry.
func NewValidator(activityValidators ...ActivityValidator) *Validator {
	if len(activityValidators) == 0 {
		activityValidators = DefaultActivityValidators()
	}
	return &Validator{
		Instructions: []InstructionValidator{
			InstructionValidatorFunc(validateActivityIDs),
			InstructionValidatorFunc(validateExistence),
			SupportedActivitiesValidator{Validators: activityValidators},
			InstructionValidatorFunc(validateSameScope),
		},
	}
}

// Validate checks every instruction and the plan as a whole. The returned
// report always lists every instruction, failing or not.
func (v *Validator) Validate(source, target *definition.ProcessDefinition, p *Plan) *Report {
	report := &Report{
		SourceDefinitionID: p.SourceDefinitionID,
		TargetDefinitionID: p.TargetDefinitionID,
	}
	if source.ID != p.SourceDefinitionID {
		report.AddFailure("plan source definition %s does not match %s", p.SourceDefinitionID, source.ID)
	}
	if target.ID != p.TargetDefinitionID {
		report.AddFailure("plan target definition %s does not match %s", p.TargetDefinitionID, target.ID)
	}

	for _, in := range p.Instructions {
		ir := &InstructionReport{Instruction: in}
		for _, iv := range v.Instructions {
			iv.Validate(source, target, in, ir)
		}
		if n := len(p.InstructionsFor(in.SourceActivityID)); !v.AllowDuplicateSources && n > 1 {
			ir.AddFailure("source activity %s is mapped by %d instructions", in.SourceActivityID, n)
		}
		report.Instructions = append(report.Instructions, ir)
	}
	return report
}

func validateActivityIDs(_, _ *definition.ProcessDefinition, in Instruction, r *InstructionReport) {
	if strings.TrimSpace(in.SourceActivityID) == "" {
		r.AddFailure("source activity id is required")
	} else if strings.ContainsAny(in.SourceActivityID, ", \t") {
		r.AddFailure("expected exactly one source activity id, got %q", in.SourceActivityID)
	}
	if strings.TrimSpace(in.TargetActivityID) == "" {
		r.AddFailure("target activity id is required")
	} else if strings.ContainsAny(in.TargetActivityID, ", \t") {
		r.AddFailure("expected exactly one target activity id, got %q", in.TargetActivityID)
	}
}

func validateExistence(source, target *definition.ProcessDefinition, in Instruction, r *InstructionReport) {
	if in.SourceActivityID != "" && source.FindActivity(in.SourceActivityID) == nil {
		r.AddFailure("source activity %s does not exist", in.SourceActivityID)
	}
	if in.TargetActivityID != "" && target.FindActivity(in.TargetActivityID) == nil {
		r.AddFailure("target activity %s does not exist", in.TargetActivityID)
	}
}

// SupportedActivitiesValidator requires both activities to pass every
// activity validator.
type SupportedActivitiesValidator struct {
	Validators []ActivityValidator
}

// Validate implements InstructionValidator.
func (v SupportedActivitiesValidator) Validate(source, target *definition.ProcessDefinition, in Instruction, r *InstructionReport) {
	if sa := source.FindActivity(in.SourceActivityID); sa != nil && !validForAll(v.Validators, sa) {
		r.AddFailure("source activity %s of type %s is not supported", sa.ID, sa.Behavior)
	}
	if ta := target.FindActivity(in.TargetActivityID); ta != nil && !validForAll(v.Validators, ta) {
		r.AddFailure("target activity %s of type %s is not supported", ta.ID, ta.Behavior)
	}
}

// validateSameScope walks both flow-scope chains in lock-step. Ancestors must
// agree by id; the two definition roots are equal whatever their ids.
func validateSameScope(source, target *definition.ProcessDefinition, in Instruction, r *InstructionReport) {
	sa := source.FindActivity(in.SourceActivityID)
	ta := target.FindActivity(in.TargetActivityID)
	if sa == nil || ta == nil {
		return
	}
	if !sameFlowScopes(sa, ta) {
		r.AddFailure("source activity %s and target activity %s are not contained in the same sub process", sa.ID, ta.ID)
	}
}

func sameFlowScopes(sa, ta *definition.Activity) bool {
	if sa.IsRoot() || ta.IsRoot() {
		return sa.IsRoot() && ta.IsRoot()
	}
	s, t := sa.FlowScope, ta.FlowScope
	for {
		if s.IsRoot() || t.IsRoot() {
			return s.IsRoot() && t.IsRoot()
		}
		if s.ID != t.ID {
			return false
		}
		s, t = s.FlowScope, t.FlowScope
	}
}

// Check validates a plan that was not produced by a Builder, such as a
// decoded document. Without activity validators the default policy applies.
func Check(source, target *definition.ProcessDefinition, p *Plan, activityValidators ...ActivityValidator) error {
	report := NewValidator(activityValidators...).Validate(source, target, p)
	if report.HasFailures() {
		return &ValidationError{Report: report}
	}
	return nil
}
