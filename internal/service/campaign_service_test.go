package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/internal/domain/mocks"
	"github.com/viaforteexpress/campaign-engine/internal/service/ingest"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

type serviceFixture struct {
	repo  *mocks.MockCampaignRepository
	queue *mocks.MockBatchQueue
	bus   *mocks.MockEventBus
	svc   *CampaignService
}

func newServiceFixture(t *testing.T, ctrl *gomock.Controller, batchSize int, sourceDir string) *serviceFixture {
	t.Helper()
	log := logger.NewLoggerWithLevel("disabled")
	f := &serviceFixture{
		repo:  mocks.NewMockCampaignRepository(ctrl),
		queue: mocks.NewMockBatchQueue(ctrl),
		bus:   mocks.NewMockEventBus(ctrl),
	}
	f.svc = NewCampaignService(f.repo, f.queue, ingest.NewIngestor(5*1024*1024, log),
		f.bus, log, batchSize, sourceDir, nil)
	return f
}

func rawLeads(n int) []domain.RawLead {
	leads := make([]domain.RawLead, n)
	for i := range leads {
		leads[i] = domain.RawLead{Email: fmt.Sprintf("lead%d@example.com", i)}
	}
	return leads
}

func TestCreateCampaign_EnqueuesOneJobPerBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	var created *domain.Campaign
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.Campaign) error {
			// Snapshot what was persisted; the service keeps mutating the
			// same struct after Create returns
			snapshot := *c
			created = &snapshot
			return nil
		})

	var jobs []*domain.BatchJob
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, job *domain.BatchJob) (string, error) {
			jobs = append(jobs, job)
			return fmt.Sprintf("job-%d", len(jobs)), nil
		}).Times(3)

	f.repo.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(),
		domain.CampaignStatusPending, domain.CampaignStatusProcessing).Return(nil)

	var event domain.EventPayload
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.EventPayload) {
		event = e
	})

	campaign, err := f.svc.CreateCampaign(context.Background(), &domain.CreateCampaignRequest{
		Name:  "Spring promo",
		Leads: rawLeads(250),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignStatusProcessing, campaign.Status)
	assert.Equal(t, 250, campaign.TotalLeads)
	assert.Equal(t, 250, campaign.ValidLeads)
	assert.Equal(t, 3, campaign.TotalBatches)
	require.NotNil(t, created)
	assert.Equal(t, domain.CampaignStatusPending, created.Status)

	// 250 leads at batch size 100 means batches of 100, 100 and 50
	require.Len(t, jobs, 3)
	assert.Len(t, jobs[0].Batch.Recipients, 100)
	assert.Len(t, jobs[1].Batch.Recipients, 100)
	assert.Len(t, jobs[2].Batch.Recipients, 50)
	for i, job := range jobs {
		assert.Equal(t, domain.JobKindInternalLeads, job.Kind)
		assert.Equal(t, campaign.ID, job.CampaignID)
		assert.Equal(t, i, job.Batch.SequenceNumber)
	}

	assert.Equal(t, domain.EventCampaignCreated, event.Type)
	assert.Equal(t, campaign.ID, event.CampaignID)
}

func TestCreateCampaign_RejectsEmptyValidLeadSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	_, err := f.svc.CreateCampaign(context.Background(), &domain.CreateCampaignRequest{
		Name:  "Broken list",
		Leads: []domain.RawLead{{Email: "nope"}, {Email: ""}},
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestCreateCampaign_InvalidRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	_, err := f.svc.CreateCampaign(context.Background(), &domain.CreateCampaignRequest{Name: ""})
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestCreateCampaign_FromSourceRef(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir := t.TempDir()
	leads := `[
		{"email": "a@example.com"},
		{"email": "b@example.com"},
		{"email": "c@example.com"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leads.json"), []byte(leads), 0o600))

	f := newServiceFixture(t, ctrl, 2, dir)

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	var jobs []*domain.BatchJob
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, job *domain.BatchJob) (string, error) {
			jobs = append(jobs, job)
			return "job", nil
		}).Times(2)

	f.repo.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(),
		domain.CampaignStatusPending, domain.CampaignStatusProcessing).Return(nil)
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any())

	campaign, err := f.svc.CreateCampaign(context.Background(), &domain.CreateCampaignRequest{
		Name:      "File campaign",
		SourceRef: "leads.json",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, campaign.ValidLeads)
	assert.Equal(t, 2, campaign.TotalBatches)

	require.Len(t, jobs, 2)
	for i, job := range jobs {
		assert.Equal(t, domain.JobKindExternalLeads, job.Kind)
		assert.Equal(t, "leads.json", job.SourceRef)
		assert.Equal(t, i, job.Batch.SequenceNumber)
		assert.Empty(t, job.Batch.Recipients)
	}
}

func TestCreateCampaign_MalformedSourceFailsWithoutCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leads.json"), []byte(`{"not": "an array"`), 0o600))

	f := newServiceFixture(t, ctrl, 100, dir)

	// No Create expectation: a malformed source must not persist anything
	_, err := f.svc.CreateCampaign(context.Background(), &domain.CreateCampaignRequest{
		Name:      "Broken file",
		SourceRef: "leads.json",
	})
	require.Error(t, err)
	assert.True(t, domain.IsIngestionError(err))
}

func TestCreateCampaign_EnqueueFailureMarksCampaignFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return("", errors.New("queue unavailable"))
	f.repo.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(),
		domain.CampaignStatusPending, domain.CampaignStatusFailed).Return(nil)

	var event domain.EventPayload
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.EventPayload) {
		event = e
	})

	_, err := f.svc.CreateCampaign(context.Background(), &domain.CreateCampaignRequest{
		Name:  "Doomed",
		Leads: rawLeads(10),
	})
	require.Error(t, err)
	assert.Equal(t, domain.EventCampaignFailed, event.Type)
}

func TestPauseCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").
		Return(&domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing}, nil)
	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1",
		domain.CampaignStatusProcessing, domain.CampaignStatusPaused).Return(nil)

	var event domain.EventPayload
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.EventPayload) {
		event = e
	})

	require.NoError(t, f.svc.PauseCampaign(context.Background(), "c1"))
	assert.Equal(t, domain.EventCampaignPaused, event.Type)
	assert.Equal(t, domain.CampaignStatusPaused, event.Progress.Status)
}

func TestPauseCampaign_InvalidState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").
		Return(&domain.Campaign{ID: "c1", Status: domain.CampaignStatusCompleted}, nil)

	err := f.svc.PauseCampaign(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
}

func TestResumeCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").
		Return(&domain.Campaign{ID: "c1", Status: domain.CampaignStatusPaused}, nil)
	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1",
		domain.CampaignStatusPaused, domain.CampaignStatusProcessing).Return(nil)
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any())

	require.NoError(t, f.svc.ResumeCampaign(context.Background(), "c1"))
}

func TestCancelCampaign_DiscardsQueuedBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").
		Return(&domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing}, nil)
	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1",
		domain.CampaignStatusProcessing, domain.CampaignStatusCancelled).Return(nil)
	f.queue.EXPECT().DiscardCampaign(gomock.Any(), "c1").Return(4, nil)

	var event domain.EventPayload
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.EventPayload) {
		event = e
	})

	require.NoError(t, f.svc.CancelCampaign(context.Background(), "c1"))
	assert.Equal(t, domain.EventCampaignCancelled, event.Type)
}

func TestCancelCampaign_TerminalCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").
		Return(&domain.Campaign{ID: "c1", Status: domain.CampaignStatusCancelled}, nil)

	err := f.svc.CancelCampaign(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
}

func TestCancelCampaign_LostRaceMapsToInvalidState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").
		Return(&domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing}, nil)
	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1",
		domain.CampaignStatusProcessing, domain.CampaignStatusCancelled).
		Return(domain.ErrStatusConflict)
	f.repo.EXPECT().GetByID(gomock.Any(), "c1").
		Return(&domain.Campaign{ID: "c1", Status: domain.CampaignStatusCompleted}, nil)

	err := f.svc.CancelCampaign(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, domain.IsInvalidState(err))
}

func TestGetCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	want := &domain.Campaign{ID: "c1"}
	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(want, nil)

	got, err := f.svc.GetCampaign(context.Background(), "c1")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestListCampaigns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newServiceFixture(t, ctrl, 100, "")

	params := domain.ListCampaignsParams{Status: []domain.CampaignStatus{domain.CampaignStatusProcessing}, Limit: 10}
	f.repo.EXPECT().List(gomock.Any(), params).
		Return([]*domain.Campaign{{ID: "c1"}, {ID: "c2"}}, 12, nil)

	resp, err := f.svc.ListCampaigns(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, resp.Campaigns, 2)
	assert.Equal(t, 12, resp.TotalCount)
}
