package migration

import (
	"errors"
	"fmt"
)

// MigrationError is a precondition failure raised before any parsing of
// instance state completes. It indicates bad input, not an invalid
// migration.
type MigrationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ProcessInstanceID identifies the affected instance, if any.
	ProcessInstanceID string
}

// ErrorCode categorizes precondition failures.
type ErrorCode string

const (
	// ErrCodeMissingPlan indicates no migration plan was given.
	ErrCodeMissingPlan ErrorCode = "MISSING_PLAN"

	// ErrCodeMissingInstances indicates no process instances were selected.
	ErrCodeMissingInstances ErrorCode = "MISSING_INSTANCES"

	// ErrCodeInstanceNotFound indicates a process instance does not exist.
	ErrCodeInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"

	// ErrCodeDefinitionMismatch indicates the instance does not run on the
	// plan's source definition, or a plan definition cannot be resolved.
	ErrCodeDefinitionMismatch ErrorCode = "DEFINITION_MISMATCH"

	// ErrCodeUnknownSourceActivity indicates the instance references an
	// activity its definition does not contain.
	ErrCodeUnknownSourceActivity ErrorCode = "UNKNOWN_SOURCE_ACTIVITY"
)

// Error implements the error interface.
func (e *MigrationError) Error() string {
	if e.ProcessInstanceID != "" {
		return fmt.Sprintf("%s: %s (process_instance=%s)", e.Code, e.Message, e.ProcessInstanceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newMigrationError(code ErrorCode, processInstanceID, format string, args ...any) *MigrationError {
	return &MigrationError{
		Code:              code,
		Message:           fmt.Sprintf(format, args...),
		ProcessInstanceID: processInstanceID,
	}
}

// ValidationError reports that a process instance cannot be migrated. It
// carries the complete report; no state was changed.
type ValidationError struct {
	Report *Report
}

func (e *ValidationError) Error() string {
	return e.Report.String()
}

// EngineError is an invariant violation detected while Phase A or Phase B
// mutate the instance. State may be partially changed; the enclosing
// transaction must be rolled back.
type EngineError struct {
	ProcessInstanceID  string
	ActivityInstanceID string
	Message            string
}

func (e *EngineError) Error() string {
	if e.ActivityInstanceID != "" {
		return fmt.Sprintf("migration engine failure: %s (process_instance=%s, activity_instance=%s)",
			e.Message, e.ProcessInstanceID, e.ActivityInstanceID)
	}
	return fmt.Sprintf("migration engine failure: %s (process_instance=%s)", e.Message, e.ProcessInstanceID)
}

func engineError(processInstanceID, activityInstanceID, format string, args ...any) *EngineError {
	return &EngineError{
		ProcessInstanceID:  processInstanceID,
		ActivityInstanceID: activityInstanceID,
		Message:            fmt.Sprintf(format, args...),
	}
}

// IsValidationError returns true if err carries an instance validation report.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsEngineError returns true if err is a fatal engine failure.
func IsEngineError(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee)
}

// IsUserError returns true if err is a precondition failure caused by the
// caller's input.
func IsUserError(err error) bool {
	var me *MigrationError
	return errors.As(err, &me)
}

// Code returns the precondition code of err, or "" if err is not a
// MigrationError.
func Code(err error) ErrorCode {
	var me *MigrationError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
