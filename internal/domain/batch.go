package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

//go:generate mockgen -destination mocks/mock_batch_queue.go -package mocks github.com/viaforteexpress/campaign-engine/internal/domain BatchQueue

// JobKind identifies the closed set of dispatch queue job variants
type JobKind string

const (
	// JobKindInternalLeads carries the batch recipients inline in the payload
	JobKindInternalLeads JobKind = "internal_leads"
	// JobKindExternalLeads references a stored lead source to be re-read by the worker
	JobKindExternalLeads JobKind = "external_leads"
)

// Batch is a fixed-size slice of a campaign's recipients processed as one unit.
// Batches for one campaign are numbered contiguously from 0; the last batch may
// be smaller than the configured batch size.
type Batch struct {
	CampaignID     string      `json:"campaign_id"`
	SequenceNumber int         `json:"sequence_number"`
	Recipients     []Recipient `json:"recipients"`
}

// BatchJob is a unit of work submitted to the dispatch queue
type BatchJob struct {
	ID         string  `json:"id"`
	Kind       JobKind `json:"kind"`
	CampaignID string  `json:"campaign_id"`
	Batch      *Batch  `json:"batch,omitempty"`
	SourceRef  string  `json:"source_ref,omitempty"`
	Attempts   int     `json:"attempts"`
}

// Validate checks the job invariants before it is accepted by a queue
func (j *BatchJob) Validate() error {
	if j.CampaignID == "" {
		return NewValidationError("job campaign_id is required")
	}
	if j.Batch == nil {
		return NewValidationError("job requires a batch")
	}
	if j.Batch.CampaignID != j.CampaignID {
		return NewValidationError("batch campaign_id does not match job")
	}
	if j.Batch.SequenceNumber < 0 {
		return NewValidationError("batch sequence_number must be non-negative")
	}
	switch j.Kind {
	case JobKindInternalLeads:
		if len(j.Batch.Recipients) == 0 {
			return NewValidationError("internal_leads job requires inline recipients")
		}
	case JobKindExternalLeads:
		if j.SourceRef == "" {
			return NewValidationError("external_leads job requires a source_ref")
		}
	default:
		return NewValidationError(fmt.Sprintf("unknown job kind: %s", j.Kind))
	}
	return nil
}

// MarshalPayload serializes the job for durable storage
func (j *BatchJob) MarshalPayload() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch job: %w", err)
	}
	return data, nil
}

// UnmarshalBatchJob deserializes a job from its stored payload and validates it
func UnmarshalBatchJob(payload []byte) (*BatchJob, error) {
	var job BatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// BatchQueue is the durable, ordered work queue decoupling batch creation from
// batch execution. Delivery is at-least-once: a job may be redelivered after a
// process restart, so consumers must be idempotent with respect to duplicate
// batch delivery. FIFO is preserved per campaign insofar as jobs were enqueued
// in order; no global cross-campaign ordering is guaranteed.
type BatchQueue interface {
	// Enqueue validates and submits a job, returning its queue ID
	Enqueue(ctx context.Context, job *BatchJob) (string, error)

	// Dequeue blocks until a job is available or the context is cancelled
	Dequeue(ctx context.Context) (*BatchJob, error)

	// Ack marks a delivered job as done; unacked jobs are redelivered
	Ack(ctx context.Context, jobID string) error

	// DiscardCampaign drops all not-yet-delivered jobs for a campaign.
	// Used by cancel: in-flight jobs are unaffected.
	DiscardCampaign(ctx context.Context, campaignID string) (int, error)
}
