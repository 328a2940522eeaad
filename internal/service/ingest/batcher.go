package ingest

import (
	"github.com/viaforteexpress/campaign-engine/internal/domain"
)

// DefaultBatchSize is the number of recipients per batch when not configured
const DefaultBatchSize = 100

// MakeBatches slices the validated recipient sequence into batches of
// batchSize, preserving input order and numbering batches contiguously from 0.
// The final batch may be short. Pure function of its input.
func MakeBatches(campaignID string, recipients []domain.Recipient, batchSize int) []domain.Batch {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if len(recipients) == 0 {
		return nil
	}

	batches := make([]domain.Batch, 0, (len(recipients)+batchSize-1)/batchSize)
	for start := 0; start < len(recipients); start += batchSize {
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batches = append(batches, domain.Batch{
			CampaignID:     campaignID,
			SequenceNumber: len(batches),
			Recipients:     recipients[start:end],
		})
	}
	return batches
}
