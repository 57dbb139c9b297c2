package definition

import (
	"fmt"
	"strings"
	"time"
)

// EventKind identifies the trigger type of an EventDeclaration.
type EventKind string

const (
	EventTimer   EventKind = "timer"
	EventMessage EventKind = "message"
	EventSignal  EventKind = "signal"
)

// EventDeclaration is a trigger declared on an event scope. At runtime a
// timer declaration materializes as a timer job, message and signal
// declarations as event subscriptions owned by the scope's execution.
type EventDeclaration struct {
	Kind EventKind

	// ActivityID is the triggering activity: the boundary event, the event
	// sub process start, or the event scope itself for scope-level timeouts.
	ActivityID string

	// EventName is the message or signal name.
	EventName string

	// TimerExpression is a Go duration ("15m", "72h") relative to creation.
	TimerExpression string
}

// JobDefinitionID identifies the job definition a timer job is bound to.
func (d EventDeclaration) JobDefinitionID() string {
	return string(d.Kind) + ":" + d.ActivityID
}

// Duration parses the timer expression.
func (d EventDeclaration) Duration() (time.Duration, error) {
	dur, err := time.ParseDuration(d.TimerExpression)
	if err != nil {
		return 0, fmt.Errorf("timer %s: invalid expression %q: %w", d.ActivityID, d.TimerExpression, err)
	}
	return dur, nil
}

// Validate checks the declaration is complete for its kind.
func (d EventDeclaration) Validate() error {
	if strings.TrimSpace(d.ActivityID) == "" {
		return fmt.Errorf("%s declaration requires a triggering activity", d.Kind)
	}
	switch d.Kind {
	case EventTimer:
		if _, err := d.Duration(); err != nil {
			return err
		}
	case EventMessage, EventSignal:
		if strings.TrimSpace(d.EventName) == "" {
			return fmt.Errorf("%s declaration %s requires an event name", d.Kind, d.ActivityID)
		}
	default:
		return fmt.Errorf("unknown event kind %q", d.Kind)
	}
	return nil
}
