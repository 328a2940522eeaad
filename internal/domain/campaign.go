package domain

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
)

//go:generate mockgen -destination mocks/mock_campaign_service.go -package mocks github.com/viaforteexpress/campaign-engine/internal/domain CampaignService
//go:generate mockgen -destination mocks/mock_campaign_repository.go -package mocks github.com/viaforteexpress/campaign-engine/internal/domain CampaignRepository

// CampaignStatus defines the current status of a campaign
type CampaignStatus string

const (
	CampaignStatusPending    CampaignStatus = "pending"
	CampaignStatusProcessing CampaignStatus = "processing"
	CampaignStatusPaused     CampaignStatus = "paused"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusFailed     CampaignStatus = "failed"
	CampaignStatusCancelled  CampaignStatus = "cancelled"
)

// Validate ensures the status is one of the known values
func (s CampaignStatus) Validate() error {
	switch s {
	case CampaignStatusPending, CampaignStatusProcessing, CampaignStatusPaused,
		CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid campaign status: %s", s)
	}
}

// IsTerminal returns true for statuses that accept no further transitions
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed || s == CampaignStatusCancelled
}

// allowedTransitions encodes the campaign lifecycle state machine:
// pending -> processing -> {paused <-> processing} -> {completed | cancelled}
// pending -> failed (ingestion/setup failure before any batch is dispatched)
// cancel is accepted from any non-terminal state
var allowedTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusPending:    {CampaignStatusProcessing, CampaignStatusFailed, CampaignStatusCancelled},
	CampaignStatusProcessing: {CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled},
	CampaignStatusPaused:     {CampaignStatusProcessing, CampaignStatusCancelled},
}

// Campaign is the durable aggregate for one bulk email send operation
type Campaign struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	OfferConfig map[string]string `json:"offer_config,omitempty"`
	Status      CampaignStatus    `json:"status"`

	TotalLeads    int `json:"total_leads"`
	ValidLeads    int `json:"valid_leads"`
	RejectedLeads int `json:"rejected_leads"`
	SentCount     int `json:"sent_count"`
	FailedCount   int `json:"failed_count"`
	CurrentBatch  int `json:"current_batch"`
	TotalBatches  int `json:"total_batches"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CanTransitionTo reports whether the transition is legal for the current status
func (c *Campaign) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range allowedTransitions[c.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the campaign to the next status, enforcing the state machine.
// Transitions out of a terminal state, or any other illegal transition, return
// an InvalidStateError and leave the campaign unchanged.
func (c *Campaign) TransitionTo(next CampaignStatus) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if !c.CanTransitionTo(next) {
		return &InvalidStateError{
			CampaignID: c.ID,
			Current:    string(c.Status),
			Requested:  string(next),
		}
	}

	now := time.Now().UTC()
	c.Status = next
	c.UpdatedAt = now

	switch next {
	case CampaignStatusProcessing:
		if c.StartedAt == nil {
			c.StartedAt = &now
		}
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled:
		c.FinishedAt = &now
	}
	return nil
}

// CampaignProgress is the observable projection of a campaign pushed to observers
type CampaignProgress struct {
	CampaignID         string         `json:"campaign_id"`
	Name               string         `json:"name"`
	Status             CampaignStatus `json:"status"`
	TotalLeads         int            `json:"total_leads"`
	ValidLeads         int            `json:"valid_leads"`
	SentCount          int            `json:"sent_count"`
	FailedCount        int            `json:"failed_count"`
	CurrentBatch       int            `json:"current_batch"`
	TotalBatches       int            `json:"total_batches"`
	RateLimitRemaining float64        `json:"rate_limit_remaining"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Progress builds the observer projection for the campaign.
// rateLimitRemaining is a point-in-time reading from the sender rate limiter;
// it is derived, never stored.
func (c *Campaign) Progress(rateLimitRemaining float64) *CampaignProgress {
	return &CampaignProgress{
		CampaignID:         c.ID,
		Name:               c.Name,
		Status:             c.Status,
		TotalLeads:         c.TotalLeads,
		ValidLeads:         c.ValidLeads,
		SentCount:          c.SentCount,
		FailedCount:        c.FailedCount,
		CurrentBatch:       c.CurrentBatch,
		TotalBatches:       c.TotalBatches,
		RateLimitRemaining: rateLimitRemaining,
		UpdatedAt:          c.UpdatedAt,
	}
}

// CreateCampaignRequest is the payload for creating a campaign
type CreateCampaignRequest struct {
	Name        string            `json:"name"`
	OfferConfig map[string]string `json:"config,omitempty"`
	Leads       []RawLead         `json:"leads,omitempty"`
	SourceRef   string            `json:"source_ref,omitempty"`
}

// Validate checks the request and returns a cleaned-up version
func (r *CreateCampaignRequest) Validate() error {
	if r.Name == "" {
		return NewValidationError("name is required")
	}
	if len(r.Name) > 255 {
		return NewValidationError("name must be at most 255 characters")
	}
	if len(r.Leads) == 0 && r.SourceRef == "" {
		return NewValidationError("either leads or source_ref is required")
	}
	if len(r.Leads) > 0 && r.SourceRef != "" {
		return NewValidationError("leads and source_ref are mutually exclusive")
	}
	if r.SourceRef != "" {
		// A source ref is a bare file name under the configured lead source
		// directory, never a path
		if strings.ContainsAny(r.SourceRef, `/\`) || r.SourceRef == "." || r.SourceRef == ".." {
			return NewValidationError("source_ref must be a plain file name")
		}
	}
	return nil
}

// CampaignControlRequest is the shared payload for pause/resume/cancel actions
type CampaignControlRequest struct {
	ID string `json:"id"`
}

// Validate checks the control request
func (r *CampaignControlRequest) Validate() error {
	if r.ID == "" {
		return NewValidationError("id is required")
	}
	if !govalidator.IsUUID(r.ID) {
		return NewValidationError("id must be a valid UUID")
	}
	return nil
}

// GetCampaignRequest is the query payload for fetching a campaign
type GetCampaignRequest struct {
	ID string
}

// FromURLParams populates the request from query parameters
func (r *GetCampaignRequest) FromURLParams(values url.Values) error {
	r.ID = values.Get("id")
	if r.ID == "" {
		return NewValidationError("id is required")
	}
	return nil
}

// ListCampaignsParams defines filtering criteria for campaign listing
type ListCampaignsParams struct {
	Status []CampaignStatus
	Limit  int
	Offset int
}

// FromURLParams populates the params from query parameters
func (p *ListCampaignsParams) FromURLParams(values url.Values) error {
	for _, s := range values["status"] {
		status := CampaignStatus(s)
		if err := status.Validate(); err != nil {
			return NewValidationError(err.Error())
		}
		p.Status = append(p.Status, status)
	}
	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return NewValidationError("limit must be a non-negative integer")
		}
		p.Limit = limit
	}
	if v := values.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return NewValidationError("offset must be a non-negative integer")
		}
		p.Offset = offset
	}
	if p.Limit == 0 || p.Limit > 100 {
		p.Limit = 100
	}
	return nil
}

// CampaignListResponse is the paginated response for campaign listing
type CampaignListResponse struct {
	Campaigns  []*Campaign `json:"campaigns"`
	TotalCount int         `json:"total_count"`
}

// CampaignService defines the control surface for campaigns
type CampaignService interface {
	// CreateCampaign ingests the lead list, creates the campaign record and
	// enqueues its batches. Returns the created campaign in pending or
	// processing state, or an error if ingestion failed (no partial campaign).
	CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*Campaign, error)

	// PauseCampaign transitions a processing campaign to paused
	PauseCampaign(ctx context.Context, id string) error

	// ResumeCampaign transitions a paused campaign back to processing
	ResumeCampaign(ctx context.Context, id string) error

	// CancelCampaign cancels a non-terminal campaign; not-yet-started batches
	// are discarded, in-flight batches finish delivering
	CancelCampaign(ctx context.Context, id string) error

	// GetCampaign retrieves a campaign by ID
	GetCampaign(ctx context.Context, id string) (*Campaign, error)

	// ListCampaigns retrieves campaigns with optional filtering
	ListCampaigns(ctx context.Context, params ListCampaignsParams) (*CampaignListResponse, error)
}

// CampaignRepository defines methods for campaign persistence
type CampaignRepository interface {
	// Create adds a new campaign
	Create(ctx context.Context, campaign *Campaign) error

	// GetByID retrieves a campaign by ID
	GetByID(ctx context.Context, id string) (*Campaign, error)

	// List retrieves campaigns with optional filtering, returning the total count
	List(ctx context.Context, params ListCampaignsParams) ([]*Campaign, int, error)

	// UpdateStatus performs a compare-and-set status transition. It returns
	// ErrStatusConflict if the campaign is no longer in the expected status.
	UpdateStatus(ctx context.Context, id string, from, to CampaignStatus) error

	// IncrementProgress atomically folds a processed batch into the campaign
	// counters and advances current_batch to sequence+1. Increments for a given
	// campaign are serialized by the database row lock so
	// sent_count+failed_count never exceeds valid_leads.
	IncrementProgress(ctx context.Context, id string, sent, failed, sequence int) (*Campaign, error)
}
