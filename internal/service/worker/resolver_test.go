package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/internal/service/ingest"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

func newTestResolver(t *testing.T, dir string, batchSize int) *LeadSourceResolver {
	t.Helper()
	log := logger.NewLoggerWithLevel("disabled")
	return NewLeadSourceResolver(ingest.NewIngestor(5*1024*1024, log), dir, batchSize, log)
}

func TestLeadSourceResolver_InternalJobReturnsInlineRecipients(t *testing.T) {
	resolver := newTestResolver(t, t.TempDir(), 100)

	job := testJob("c1", 0)
	recipients, err := resolver.Resolve(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, job.Batch.Recipients, recipients)
}

func TestLeadSourceResolver_ExternalJobSlicesSourceFile(t *testing.T) {
	dir := t.TempDir()
	leads := `[
		{"email": "a@example.com"},
		{"email": "b@example.com"},
		{"email": "not-an-email"},
		{"email": "c@example.com"},
		{"email": "d@example.com"},
		{"email": "e@example.com"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leads.json"), []byte(leads), 0o600))

	resolver := newTestResolver(t, dir, 2)
	job := &domain.BatchJob{
		ID:         "job-1",
		Kind:       domain.JobKindExternalLeads,
		CampaignID: "c1",
		SourceRef:  "leads.json",
		Batch:      &domain.Batch{CampaignID: "c1", SequenceNumber: 1},
	}

	recipients, err := resolver.Resolve(context.Background(), job)
	require.NoError(t, err)

	// The invalid entry is dropped during ingestion, so batch 1 of the five
	// valid recipients covers the third and fourth
	require.Len(t, recipients, 2)
	assert.Equal(t, "c@example.com", recipients[0].Email)
	assert.Equal(t, "d@example.com", recipients[1].Email)
}

func TestLeadSourceResolver_ExternalJobLastBatchIsShorter(t *testing.T) {
	dir := t.TempDir()
	leads := `[
		{"email": "a@example.com"},
		{"email": "b@example.com"},
		{"email": "c@example.com"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leads.json"), []byte(leads), 0o600))

	resolver := newTestResolver(t, dir, 2)
	job := &domain.BatchJob{
		ID:         "job-1",
		Kind:       domain.JobKindExternalLeads,
		CampaignID: "c1",
		SourceRef:  "leads.json",
		Batch:      &domain.Batch{CampaignID: "c1", SequenceNumber: 1},
	}

	recipients, err := resolver.Resolve(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, "c@example.com", recipients[0].Email)
}

func TestLeadSourceResolver_MissingSourceIsRetryable(t *testing.T) {
	resolver := newTestResolver(t, t.TempDir(), 100)
	job := &domain.BatchJob{
		ID:         "job-1",
		Kind:       domain.JobKindExternalLeads,
		CampaignID: "c1",
		SourceRef:  "missing.json",
		Batch:      &domain.Batch{CampaignID: "c1", SequenceNumber: 0},
	}

	_, err := resolver.Resolve(context.Background(), job)
	require.Error(t, err)

	var campErr *CampaignError
	require.ErrorAs(t, err, &campErr)
	assert.Equal(t, ErrCodeBatchResolve, campErr.Code)
	assert.True(t, campErr.Retryable)
}

func TestLeadSourceResolver_OutOfRangeSequence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leads.json"),
		[]byte(`[{"email": "a@example.com"}]`), 0o600))

	resolver := newTestResolver(t, dir, 100)
	job := &domain.BatchJob{
		ID:         "job-1",
		Kind:       domain.JobKindExternalLeads,
		CampaignID: "c1",
		SourceRef:  "leads.json",
		Batch:      &domain.Batch{CampaignID: "c1", SequenceNumber: 5},
	}

	_, err := resolver.Resolve(context.Background(), job)
	require.Error(t, err)

	var campErr *CampaignError
	require.ErrorAs(t, err, &campErr)
	assert.Equal(t, ErrCodeBatchResolve, campErr.Code)
	assert.False(t, campErr.Retryable)
}
