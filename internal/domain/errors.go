package domain

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a campaign or job does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with ID: %s", e.Entity, e.ID)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// ValidationError represents an error caused by invalid input or parameters
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new validation error with the given message
func NewValidationError(message string) error {
	return ValidationError{Message: message}
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var validation ValidationError
	return errors.As(err, &validation)
}

// InvalidStateError is returned when a control action is incompatible with the
// campaign's current status. The campaign is left unchanged.
type InvalidStateError struct {
	CampaignID string
	Current    string
	Requested  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition for campaign %s: %s -> %s", e.CampaignID, e.Current, e.Requested)
}

// IsInvalidState reports whether err is an InvalidStateError
func IsInvalidState(err error) bool {
	var invalid *InvalidStateError
	return errors.As(err, &invalid)
}

// IngestionError represents a malformed lead source document. It is fatal to
// campaign creation: no partial campaign is created.
type IngestionError struct {
	Reason string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("ingestion failed: %s", e.Reason)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// IsIngestionError reports whether err is an IngestionError
func IsIngestionError(err error) bool {
	var ingestion *IngestionError
	return errors.As(err, &ingestion)
}

// ErrStatusConflict is returned by the repository when a compare-and-set status
// update finds the campaign in a different status than expected
var ErrStatusConflict = errors.New("campaign status changed concurrently")
