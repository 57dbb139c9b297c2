package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/flowmig/internal/definition"
)

// CompileProcess parses a CUE value into a ProcessDefinition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the process struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`process: order: { version: 1, activities: { ... } }`)
//	def, err := CompileProcess(v.LookupPath(cue.ParsePath("process.order")))
//
// The struct label is the definition key unless an explicit key field is
// given. The id defaults to "<key>:<version>".
func CompileProcess(v cue.Value) (*definition.ProcessDefinition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var label string
	if sels := v.Path().Selectors(); len(sels) > 0 {
		if sel := sels[len(sels)-1]; sel.LabelType() == cue.StringLabel {
			label = sel.Unquoted()
		}
	}

	key, err := optionalString(v, "key", label)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, &CompileError{Field: "key", Message: "process key is required", Pos: v.Pos()}
	}

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return nil, &CompileError{Field: "version", Message: "version is required", Pos: v.Pos()}
	}
	version64, err := versionVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	version := int(version64)

	id, err := optionalString(v, "id", fmt.Sprintf("%s:%d", key, version))
	if err != nil {
		return nil, err
	}

	def := definition.New(id, key, version)
	if def.Name, err = optionalString(v, "name", ""); err != nil {
		return nil, err
	}

	decls, err := parseEvents(v)
	if err != nil {
		return nil, err
	}
	for _, decl := range decls {
		def.Root.Declare(decl)
	}

	if err := parseActivities(def.Root, v); err != nil {
		return nil, err
	}
	return def, nil
}

// parseActivities adds the children declared under v's "activities" struct
// to parent, in declaration order.
func parseActivities(parent *definition.Activity, v cue.Value) error {
	activitiesVal := v.LookupPath(cue.ParsePath("activities"))
	if !activitiesVal.Exists() {
		return nil
	}

	iter, err := activitiesVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}

	for iter.Next() {
		id := iter.Label()
		av := iter.Value()

		typeVal := av.LookupPath(cue.ParsePath("type"))
		if !typeVal.Exists() {
			return &CompileError{
				Field:   fmt.Sprintf("activities.%s.type", id),
				Message: "activity type is required",
				Pos:     av.Pos(),
			}
		}
		behavior, err := typeVal.String()
		if err != nil {
			return formatCUEError(err)
		}

		activity := parent.Add(id, definition.Behavior(behavior))
		if activity.Name, err = optionalString(av, "name", ""); err != nil {
			return err
		}
		if activity.AttachedTo, err = optionalString(av, "attachedTo", ""); err != nil {
			return err
		}
		if activity.AsyncBefore, err = optionalBool(av, "asyncBefore"); err != nil {
			return err
		}
		if activity.AsyncAfter, err = optionalBool(av, "asyncAfter"); err != nil {
			return err
		}
		scope, err := optionalBool(av, "scope")
		if err != nil {
			return err
		}

		decls, err := parseEvents(av)
		if err != nil {
			return err
		}
		for _, decl := range decls {
			activity.Declare(decl)
		}
		activity.Scope = activity.Scope || scope

		if err := parseActivities(activity, av); err != nil {
			return err
		}
	}
	return nil
}

// parseEvents extracts the event declarations listed under "events".
func parseEvents(v cue.Value) ([]definition.EventDeclaration, error) {
	eventsVal := v.LookupPath(cue.ParsePath("events"))
	if !eventsVal.Exists() {
		return nil, nil
	}

	iter, err := eventsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []definition.EventDeclaration
	for iter.Next() {
		ev := iter.Value()
		kind, err := ev.LookupPath(cue.ParsePath("kind")).String()
		if err != nil {
			return nil, &CompileError{Field: "events.kind", Message: "event kind is required", Pos: ev.Pos()}
		}
		decl := definition.EventDeclaration{Kind: definition.EventKind(kind)}
		if decl.ActivityID, err = optionalString(ev, "activity", ""); err != nil {
			return nil, err
		}
		if decl.EventName, err = optionalString(ev, "name", ""); err != nil {
			return nil, err
		}
		if decl.TimerExpression, err = optionalString(ev, "timer", ""); err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func optionalString(v cue.Value, field, fallback string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return fallback, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
