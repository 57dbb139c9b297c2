package plan

import "fmt"

// Instruction maps one source activity to one target activity.
// Instructions are values; a built plan never changes them.
type Instruction struct {
	SourceActivityID string `json:"sourceActivityId"`
	TargetActivityID string `json:"targetActivityId"`

	// UpdateEventTrigger refreshes timer and subscription configuration from
	// the target declaration when the owning entity migrates.
	UpdateEventTrigger bool `json:"updateEventTrigger,omitempty"`
}

func (i Instruction) String() string {
	if i.UpdateEventTrigger {
		return fmt.Sprintf("%s -> %s (update event trigger)", i.SourceActivityID, i.TargetActivityID)
	}
	return fmt.Sprintf("%s -> %s", i.SourceActivityID, i.TargetActivityID)
}

// Plan is a migration plan from one definition version to another.
type Plan struct {
	SourceDefinitionID string        `json:"sourceProcessDefinitionId"`
	TargetDefinitionID string        `json:"targetProcessDefinitionId"`
	Instructions       []Instruction `json:"instructions"`
}

// InstructionFor returns the first instruction whose source is
// sourceActivityID. Duplicates are a validation concern; lookups never
// apply precedence beyond list order.
func (p *Plan) InstructionFor(sourceActivityID string) (Instruction, bool) {
	for _, in := range p.Instructions {
		if in.SourceActivityID == sourceActivityID {
			return in, true
		}
	}
	return Instruction{}, false
}

// InstructionsFor returns every instruction whose source is sourceActivityID.
func (p *Plan) InstructionsFor(sourceActivityID string) []Instruction {
	var out []Instruction
	for _, in := range p.Instructions {
		if in.SourceActivityID == sourceActivityID {
			out = append(out, in)
		}
	}
	return out
}

func (p *Plan) String() string {
	return fmt.Sprintf("plan %s -> %s (%d instructions)", p.SourceDefinitionID, p.TargetDefinitionID, len(p.Instructions))
}
