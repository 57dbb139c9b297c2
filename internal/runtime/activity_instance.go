package runtime

import (
	"errors"
	"fmt"
	"strings"
)

var errParentPending = errors.New("parent activity instance not built yet")

// ActivityInstance is a read-only snapshot of one live scope or activity.
type ActivityInstance struct {
	ID                string `json:"id"`
	ActivityID        string `json:"activity"`
	ParentID          string `json:"parent,omitempty"`
	ProcessInstanceID string `json:"process_instance"`

	// ExecutionID is the representative execution.
	ExecutionID string `json:"execution"`

	Children            []*ActivityInstance   `json:"children,omitempty"`
	TransitionInstances []*TransitionInstance `json:"transitions,omitempty"`
}

// TransitionInstance marks an asynchronous continuation not yet resting at a
// stable activity instance.
type TransitionInstance struct {
	ID                       string `json:"id"`
	ActivityID               string `json:"activity"`
	ParentActivityInstanceID string `json:"parent"`
	ProcessInstanceID        string `json:"process_instance"`
	ExecutionID              string `json:"execution"`
}

// ActivityInstanceTree materializes the activity-instance tree of a process
// instance from its executions. Children keep execution insertion order.
// Event-scope executions and everything below them are skipped.
func (s *State) ActivityInstanceTree(processInstanceID string) (*ActivityInstance, error) {
	pi := s.Execution(processInstanceID)
	if pi == nil || !pi.IsProcessInstance() {
		return nil, fmt.Errorf("process instance %s not found", processInstanceID)
	}
	if pi.ActivityInstanceID == "" {
		return nil, fmt.Errorf("process instance %s: root execution carries no activity instance", processInstanceID)
	}

	byExecution := make(map[string]*Execution)
	for _, e := range s.Executions(processInstanceID) {
		byExecution[e.ID] = e
	}
	nodes := make(map[string]*ActivityInstance)

	root := &ActivityInstance{
		ID:                pi.ActivityInstanceID,
		ActivityID:        pi.ActivityID,
		ProcessInstanceID: processInstanceID,
		ExecutionID:       pi.ID,
	}
	nodes[pi.ID] = root

	// owner walks up from an execution's parent to the nearest execution
	// carrying an activity instance. ok is false below event scopes.
	var owner func(e *Execution) (*ActivityInstance, bool, error)
	owner = func(e *Execution) (*ActivityInstance, bool, error) {
		for seen := 0; e.ParentID != ""; seen++ {
			if seen > len(byExecution) {
				return nil, false, fmt.Errorf("execution %s: cycle in parent chain", e.ID)
			}
			parent, ok := byExecution[e.ParentID]
			if !ok {
				return nil, false, fmt.Errorf("execution %s: parent %s not found", e.ID, e.ParentID)
			}
			if parent.IsEventScope {
				return nil, false, nil
			}
			if parent.ActivityInstanceID != "" {
				if node, ok := nodes[parent.ID]; ok {
					return node, true, nil
				}
				return nil, false, errParentPending
			}
			e = parent
		}
		return nil, false, fmt.Errorf("execution %s: detached from process instance %s", e.ID, processInstanceID)
	}

	// Parents are built before children regardless of insertion order.
	pending := s.Executions(processInstanceID)
	for len(pending) > 0 {
		var retry []*Execution
		progressed := false
		for _, e := range pending {
			if e == pi || e.IsEventScope || (e.ActivityInstanceID == "" && !e.IsTransition()) {
				progressed = true
				continue
			}
			parent, ok, err := owner(e)
			if err != nil {
				if errors.Is(err, errParentPending) {
					retry = append(retry, e)
					continue
				}
				return nil, err
			}
			progressed = true
			if !ok {
				continue
			}
			if e.IsTransition() {
				parent.TransitionInstances = append(parent.TransitionInstances, &TransitionInstance{
					ID:                       e.ID,
					ActivityID:               e.ActivityID,
					ParentActivityInstanceID: parent.ID,
					ProcessInstanceID:        processInstanceID,
					ExecutionID:              e.ID,
				})
				continue
			}
			node := &ActivityInstance{
				ID:                e.ActivityInstanceID,
				ActivityID:        e.ActivityID,
				ParentID:          parent.ID,
				ProcessInstanceID: processInstanceID,
				ExecutionID:       e.ID,
			}
			nodes[e.ID] = node
			parent.Children = append(parent.Children, node)
		}
		if !progressed {
			return nil, fmt.Errorf("process instance %s: activity instance tree is not connected", processInstanceID)
		}
		pending = retry
	}
	return root, nil
}

// Walk visits ai and its descendants parent first.
func (ai *ActivityInstance) Walk(fn func(*ActivityInstance)) {
	fn(ai)
	for _, c := range ai.Children {
		c.Walk(fn)
	}
}

// Format renders the tree one node per line, indented by depth, transition
// instances marked with "~".
func (ai *ActivityInstance) Format() string {
	var b strings.Builder
	var write func(n *ActivityInstance, depth int)
	write = func(n *ActivityInstance, depth int) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(&b, "%s%s (%s)\n", indent, n.ActivityID, n.ID)
		for _, c := range n.Children {
			write(c, depth+1)
		}
		for _, ti := range n.TransitionInstances {
			fmt.Fprintf(&b, "%s  ~%s (%s)\n", indent, ti.ActivityID, ti.ID)
		}
	}
	write(ai, 0)
	return b.String()
}
