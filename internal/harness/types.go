package harness

import "github.com/roach88/flowmig/internal/runtime"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success: the outcome matched and every
	// assertion held.
	Pass bool

	// Outcome classifies what the migration step did.
	Outcome string

	// Error is the migration error text, empty when the step succeeded.
	Error string

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string

	// Instances lists every imported process instance in import order.
	Instances []string

	// States holds the stored state of each instance after the step.
	States map[string]*runtime.State

	// Before and After are instance fingerprints around the step.
	Before map[string]string
	After  map[string]string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
		States: make(map[string]*runtime.State),
		Before: make(map[string]string),
		After:  make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
