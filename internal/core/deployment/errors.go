package deployment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Policy errors
	ErrInvalidPolicy = errors.New("invalid policy table")
	ErrMissingRole   = errors.New("no artifact is assigned a required role")

	// Ordering errors
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrUnknownDependency  = errors.New("dependency is not a work item")

	// State errors
	ErrInvalidTransition = errors.New("invalid state transition")

	// Manifest errors
	ErrInvalidManifest = errors.New("existing manifest is not a JSON object")
)

// PlanError wraps errors with the artifact or field that caused them.
type PlanError struct {
	Field   string
	Message string
	Err     error
}

func (e *PlanError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError creates a new PlanError.
func NewPlanError(field, message string, err error) *PlanError {
	return &PlanError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
