package migration

import (
	"fmt"
	"strings"
)

// Report collects instance validation failures for one process instance.
// Failures are gathered completely before anything is raised.
type Report struct {
	ProcessInstanceID string

	// Failures are findings about the instance as a whole, such as runtime
	// entities no handler accounted for.
	Failures []string

	Instances []*InstanceReport
}

// InstanceReport holds the failures of one migrating node.
type InstanceReport struct {
	ID         string
	Kind       NodeKind
	ActivityID string
	Failures   []string
}

// AddFailure records a failure for the node.
func (r *InstanceReport) AddFailure(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// HasFailures reports whether the node failed any check.
func (r *InstanceReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// NewReport creates an empty report.
func NewReport(processInstanceID string) *Report {
	return &Report{ProcessInstanceID: processInstanceID}
}

// AddFailure records a process-instance level failure.
func (r *Report) AddFailure(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// ForInstance returns the section for node n, creating it on first use.
func (r *Report) ForInstance(n *MigratingInstance) *InstanceReport {
	for _, ir := range r.Instances {
		if ir.ID == n.ID {
			return ir
		}
	}
	ir := &InstanceReport{ID: n.ID, Kind: n.Kind, ActivityID: n.ActivityID}
	r.Instances = append(r.Instances, ir)
	return ir
}

// HasFailures reports whether anything in the report failed.
func (r *Report) HasFailures() bool {
	if len(r.Failures) > 0 {
		return true
	}
	for _, ir := range r.Instances {
		if ir.HasFailures() {
			return true
		}
	}
	return false
}

// FailureCount counts every failure in the report.
func (r *Report) FailureCount() int {
	n := len(r.Failures)
	for _, ir := range r.Instances {
		n += len(ir.Failures)
	}
	return n
}

// String renders the report as a stable multi-line description. Nodes
// without failures are omitted.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cannot migrate process instance '%s':", r.ProcessInstanceID)
	for _, f := range r.Failures {
		b.WriteString("\n\t")
		b.WriteString(f)
	}
	for _, ir := range r.Instances {
		if !ir.HasFailures() {
			continue
		}
		fmt.Fprintf(&b, "\n\tCannot migrate %s instance '%s':", ir.Kind, ir.ID)
		for _, f := range ir.Failures {
			b.WriteString("\n\t\t")
			b.WriteString(f)
		}
	}
	return b.String()
}
