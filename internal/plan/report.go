package plan

import (
	"fmt"
	"strings"
)

// Report collects plan validation failures. It is filled in completely
// before anything is raised.
type Report struct {
	SourceDefinitionID string
	TargetDefinitionID string

	// Failures are plan-level findings not tied to one instruction.
	Failures []string

	Instructions []*InstructionReport
}

// InstructionReport holds the failures of one instruction.
type InstructionReport struct {
	Instruction Instruction
	Failures    []string
}

// AddFailure records a failure for the instruction.
func (r *InstructionReport) AddFailure(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// HasFailures reports whether the instruction failed any check.
func (r *InstructionReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// AddFailure records a plan-level failure.
func (r *Report) AddFailure(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// HasFailures reports whether anything in the report failed.
func (r *Report) HasFailures() bool {
	if len(r.Failures) > 0 {
		return true
	}
	for _, ir := range r.Instructions {
		if ir.HasFailures() {
			return true
		}
	}
	return false
}

// String renders the report as a stable multi-line description.
// Instructions without failures are omitted.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Migration plan for process definition '%s' to '%s' is not valid:", r.SourceDefinitionID, r.TargetDefinitionID)
	for _, f := range r.Failures {
		b.WriteString("\n\t")
		b.WriteString(f)
	}
	for _, ir := range r.Instructions {
		if !ir.HasFailures() {
			continue
		}
		fmt.Fprintf(&b, "\n\tMigration instruction %s is not valid:", ir.Instruction)
		for _, f := range ir.Failures {
			b.WriteString("\n\t\t")
			b.WriteString(f)
		}
	}
	return b.String()
}

// ValidationError is returned when a plan fails validation. It carries the
// full report.
type ValidationError struct {
	Report *Report
}

func (e *ValidationError) Error() string {
	return e.Report.String()
}
