package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/internal/service/ingest"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

// LeadSourceResolver resolves batch jobs to their recipients. Internal jobs
// carry recipients inline; external jobs name a lead source file that is
// re-ingested and sliced to the job's batch window. Ingestion is
// deterministic (validation and dedup preserve first-seen order), so the
// slice for a given sequence number is stable across redeliveries.
type LeadSourceResolver struct {
	ingestor  *ingest.Ingestor
	sourceDir string
	batchSize int
	logger    logger.Logger
}

// NewLeadSourceResolver creates a resolver reading external sources from sourceDir
func NewLeadSourceResolver(ingestor *ingest.Ingestor, sourceDir string, batchSize int, log logger.Logger) *LeadSourceResolver {
	return &LeadSourceResolver{
		ingestor:  ingestor,
		sourceDir: sourceDir,
		batchSize: batchSize,
		logger:    log,
	}
}

func (r *LeadSourceResolver) Resolve(ctx context.Context, job *domain.BatchJob) ([]domain.Recipient, error) {
	switch job.Kind {
	case domain.JobKindInternalLeads:
		return job.Batch.Recipients, nil
	case domain.JobKindExternalLeads:
		return r.resolveExternal(job)
	default:
		return nil, NewCampaignErrorWithID(ErrCodePayloadInvalid,
			fmt.Sprintf("unknown job kind: %s", job.Kind), job.CampaignID, false, nil)
	}
}

func (r *LeadSourceResolver) resolveExternal(job *domain.BatchJob) ([]domain.Recipient, error) {
	// The source ref is reduced to its base name so a payload can never
	// escape the configured source directory
	path := filepath.Join(r.sourceDir, filepath.Base(job.SourceRef))

	file, err := os.Open(path)
	if err != nil {
		return nil, NewCampaignErrorWithID(ErrCodeBatchResolve,
			fmt.Sprintf("failed to open lead source %s", job.SourceRef), job.CampaignID, true, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, NewCampaignErrorWithID(ErrCodeBatchResolve,
			"failed to stat lead source", job.CampaignID, true, err)
	}

	result, err := r.ingestor.IngestReader(file, info.Size())
	if err != nil {
		return nil, NewCampaignErrorWithID(ErrCodeBatchResolve,
			"failed to ingest lead source", job.CampaignID, false, err)
	}

	start := job.Batch.SequenceNumber * r.batchSize
	if start >= len(result.Recipients) {
		return nil, NewCampaignErrorWithID(ErrCodeBatchResolve,
			fmt.Sprintf("batch %d is out of range for source with %d recipients",
				job.Batch.SequenceNumber, len(result.Recipients)), job.CampaignID, false, nil)
	}
	end := start + r.batchSize
	if end > len(result.Recipients) {
		end = len(result.Recipients)
	}
	return result.Recipients[start:end], nil
}
