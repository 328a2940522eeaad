package worker

import "fmt"

// ErrorCode represents specific error conditions in the batch worker system
type ErrorCode string

const (
	// Campaign related errors
	ErrCodeCampaignNotFound     ErrorCode = "CAMPAIGN_NOT_FOUND"
	ErrCodeCampaignStateInvalid ErrorCode = "CAMPAIGN_STATE_INVALID"

	// Batch related errors
	ErrCodeBatchResolve   ErrorCode = "BATCH_RESOLVE_FAILED"
	ErrCodePayloadInvalid ErrorCode = "PAYLOAD_INVALID"

	// Sending related errors
	ErrCodeSendFailed        ErrorCode = "SEND_FAILED"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"

	// Queue related errors
	ErrCodeQueueFailure ErrorCode = "QUEUE_FAILURE"
)

// CampaignError represents an error in the worker system with context
type CampaignError struct {
	Code       ErrorCode
	Message    string
	CampaignID string
	Retryable  bool
	Err        error
}

// Error implements the error interface
func (e *CampaignError) Error() string {
	if e.Err != nil {
		if e.CampaignID != "" {
			return fmt.Sprintf("[%s] %s (campaign: %s): %v", e.Code, e.Message, e.CampaignID, e.Err)
		}
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	if e.CampaignID != "" {
		return fmt.Sprintf("[%s] %s (campaign: %s)", e.Code, e.Message, e.CampaignID)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CampaignError) Unwrap() error {
	return e.Err
}

// NewCampaignError creates a new worker error
func NewCampaignError(code ErrorCode, message string, retryable bool, err error) *CampaignError {
	return &CampaignError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Err:       err,
	}
}

// NewCampaignErrorWithID creates a new worker error tied to a campaign
func NewCampaignErrorWithID(code ErrorCode, message string, campaignID string, retryable bool, err error) *CampaignError {
	return &CampaignError{
		Code:       code,
		Message:    message,
		CampaignID: campaignID,
		Retryable:  retryable,
		Err:        err,
	}
}

// IsRetryable returns whether the error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*CampaignError); ok {
		return e.Retryable
	}
	return false
}
