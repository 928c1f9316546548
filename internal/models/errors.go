package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrProjectIDRequired indicates a required project ID field is zero.
	ErrProjectIDRequired = errors.New("project_id is required")

	// ErrClipIDRequired indicates a required clip ID field is empty.
	ErrClipIDRequired = errors.New("clip_id is required")

	// ErrResolutionRequired indicates a required resolution field is empty.
	ErrResolutionRequired = errors.New("resolution is required")

	// ErrTitleRequired indicates a required title field is empty.
	ErrTitleRequired = errors.New("title is required")

	// ErrJobNotClaimable indicates the job is no longer in the queued state.
	ErrJobNotClaimable = errors.New("job is not in queued state")
)
