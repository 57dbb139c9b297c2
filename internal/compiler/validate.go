package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/flowmig/internal/definition"
)

// Validation error codes (E200-E299)
const (
	ErrDefinitionIdentity  = "E201" // id or key missing
	ErrDefinitionVersion   = "E202" // version must be positive
	ErrUnknownActivityType = "E203" // unknown behavior
	ErrDuplicateActivityID = "E204" // activity id used twice
	ErrChildrenNotAllowed  = "E205" // non-container declares activities
	ErrUnresolvedAttach    = "E206" // attachedTo names no sibling
	ErrInvalidEvent        = "E207" // malformed event declaration
	ErrDuplicateEvent      = "E208" // same kind and trigger declared twice in one scope
	ErrReservedBehavior    = "E209" // "process" used below the root
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled definition against the structural rules.
// Returns all errors found (does not fail-fast).
func Validate(def *definition.ProcessDefinition) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(def.ID) == "" || strings.TrimSpace(def.Key) == "" {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: "definition id and key are required",
			Code:    ErrDefinitionIdentity,
		})
	}
	if def.Version < 1 {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("version must be positive, got %d", def.Version),
			Code:    ErrDefinitionVersion,
		})
	}

	errs = append(errs, validateEvents(def.Root)...)

	seen := map[string]bool{def.Root.ID: true}
	for _, a := range def.Activities() {
		field := "activities." + a.ID

		if seen[a.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate activity id %q", a.ID),
				Code:    ErrDuplicateActivityID,
			})
		}
		seen[a.ID] = true

		switch {
		case a.Behavior == definition.BehaviorProcess:
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: "type \"process\" is reserved for the process itself",
				Code:    ErrReservedBehavior,
			})
		case !definition.ValidBehaviors[a.Behavior]:
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown activity type %q", a.Behavior),
				Code:    ErrUnknownActivityType,
			})
		}

		if len(a.Children) > 0 && !a.Behavior.IsContainer() {
			errs = append(errs, ValidationError{
				Field:   field + ".activities",
				Message: fmt.Sprintf("%s cannot contain activities", a.Behavior),
				Code:    ErrChildrenNotAllowed,
			})
		}

		if a.AttachedTo != "" && a.FlowScope.FindChild(a.AttachedTo) == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".attachedTo",
				Message: fmt.Sprintf("no sibling activity %q", a.AttachedTo),
				Code:    ErrUnresolvedAttach,
			})
		}

		errs = append(errs, validateEvents(a)...)
	}

	return errs
}

func validateEvents(a *definition.Activity) []ValidationError {
	var errs []ValidationError
	field := "activities." + a.ID + ".events"
	if a.IsRoot() {
		field = "events"
	}

	seen := make(map[string]bool)
	for i, decl := range a.Declarations {
		if err := decl.Validate(); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: err.Error(),
				Code:    ErrInvalidEvent,
			})
			continue
		}
		key := decl.JobDefinitionID()
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("%s trigger %q declared twice", decl.Kind, decl.ActivityID),
				Code:    ErrDuplicateEvent,
			})
		}
		seen[key] = true
	}
	return errs
}
