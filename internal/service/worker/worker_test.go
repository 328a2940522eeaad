package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	domainmocks "github.com/viaforteexpress/campaign-engine/internal/domain/mocks"
	workermocks "github.com/viaforteexpress/campaign-engine/internal/service/worker/mocks"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

type poolFixture struct {
	queue    *domainmocks.MockBatchQueue
	repo     *domainmocks.MockCampaignRepository
	sender   *workermocks.MockBatchSender
	resolver *workermocks.MockBatchResolver
	bus      *domainmocks.MockEventBus
	pool     *Pool
}

func newPoolFixture(t *testing.T, ctrl *gomock.Controller) *poolFixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PauseRequeueDelay = time.Millisecond

	f := &poolFixture{
		queue:    domainmocks.NewMockBatchQueue(ctrl),
		repo:     domainmocks.NewMockCampaignRepository(ctrl),
		sender:   workermocks.NewMockBatchSender(ctrl),
		resolver: workermocks.NewMockBatchResolver(ctrl),
		bus:      domainmocks.NewMockEventBus(ctrl),
	}
	f.pool = NewPool(f.queue, f.repo, f.sender, f.resolver, f.bus,
		logger.NewLoggerWithLevel("disabled"), cfg, nil)
	return f
}

func testJob(campaignID string, sequence int) *domain.BatchJob {
	return &domain.BatchJob{
		ID:         "job-1",
		Kind:       domain.JobKindInternalLeads,
		CampaignID: campaignID,
		Batch: &domain.Batch{
			CampaignID:     campaignID,
			SequenceNumber: sequence,
			Recipients: []domain.Recipient{
				{Email: "a@example.com"},
				{Email: "b@example.com"},
			},
		},
	}
}

func TestPool_ProcessJob_HappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 0)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, TotalBatches: 2}
	updated := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, SentCount: 2, CurrentBatch: 1, TotalBatches: 2}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	f.resolver.EXPECT().Resolve(gomock.Any(), job).Return(job.Batch.Recipients, nil)
	f.sender.EXPECT().SendBatch(gomock.Any(), campaign, job.Batch.Recipients).Return(2, 0, nil)
	f.repo.EXPECT().IncrementProgress(gomock.Any(), "c1", 2, 0, 0).Return(updated, nil)
	f.sender.EXPECT().RateLimitRemaining().Return(3.5)

	var published domain.EventPayload
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.EventPayload) {
		published = e
	})
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)

	assert.Equal(t, domain.EventCampaignProgress, published.Type)
	assert.Equal(t, "c1", published.CampaignID)
	require.NotNil(t, published.Progress)
	assert.Equal(t, 2, published.Progress.SentCount)
	assert.Equal(t, 1, published.Progress.CurrentBatch)
	assert.Equal(t, 3.5, published.Progress.RateLimitRemaining)
}

func TestPool_ProcessJob_CompletesCampaignOnLastBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 1)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, CurrentBatch: 1, TotalBatches: 2}
	updated := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, SentCount: 4, CurrentBatch: 2, TotalBatches: 2}
	completed := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusCompleted, ValidLeads: 4, SentCount: 4, CurrentBatch: 2, TotalBatches: 2}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	f.resolver.EXPECT().Resolve(gomock.Any(), job).Return(job.Batch.Recipients, nil)
	f.sender.EXPECT().SendBatch(gomock.Any(), campaign, job.Batch.Recipients).Return(2, 0, nil)
	f.repo.EXPECT().IncrementProgress(gomock.Any(), "c1", 2, 0, 1).Return(updated, nil)
	f.sender.EXPECT().RateLimitRemaining().Return(5.0).Times(2)

	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1", domain.CampaignStatusProcessing, domain.CampaignStatusCompleted).Return(nil)
	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(completed, nil)

	var events []domain.EventPayload
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e domain.EventPayload) {
		events = append(events, e)
	}).Times(2)
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)

	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCampaignProgress, events[0].Type)
	assert.Equal(t, domain.EventCampaignCompleted, events[1].Type)
	assert.Equal(t, domain.CampaignStatusCompleted, events[1].Progress.Status)
}

func TestPool_ProcessJob_CompletionLosesToConcurrentCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 1)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, CurrentBatch: 1, TotalBatches: 2}
	updated := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, SentCount: 4, CurrentBatch: 2, TotalBatches: 2}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	f.resolver.EXPECT().Resolve(gomock.Any(), job).Return(job.Batch.Recipients, nil)
	f.sender.EXPECT().SendBatch(gomock.Any(), campaign, job.Batch.Recipients).Return(2, 0, nil)
	f.repo.EXPECT().IncrementProgress(gomock.Any(), "c1", 2, 0, 1).Return(updated, nil)
	f.sender.EXPECT().RateLimitRemaining().Return(5.0)

	// A concurrent cancel already moved the campaign out of processing;
	// no completion event is published
	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1", domain.CampaignStatusProcessing, domain.CampaignStatusCompleted).
		Return(domain.ErrStatusConflict)

	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(1)
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)
}

func TestPool_ProcessJob_ClaimsPendingCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 0)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusPending, ValidLeads: 4, TotalBatches: 2}
	updated := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, SentCount: 2, CurrentBatch: 1, TotalBatches: 2}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	// The creator crashed before starting the campaign; the worker takes over
	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1", domain.CampaignStatusPending, domain.CampaignStatusProcessing).Return(nil)
	f.resolver.EXPECT().Resolve(gomock.Any(), job).Return(job.Batch.Recipients, nil)
	f.sender.EXPECT().SendBatch(gomock.Any(), campaign, job.Batch.Recipients).Return(2, 0, nil)
	f.repo.EXPECT().IncrementProgress(gomock.Any(), "c1", 2, 0, 0).Return(updated, nil)
	f.sender.EXPECT().RateLimitRemaining().Return(5.0)
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any())
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)
}

func TestPool_ProcessJob_PendingClaimLosesToConcurrentCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 0)
	pending := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusPending}
	cancelled := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusCancelled}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(pending, nil)
	f.repo.EXPECT().UpdateStatus(gomock.Any(), "c1", domain.CampaignStatusPending, domain.CampaignStatusProcessing).
		Return(domain.ErrStatusConflict)
	// The reloaded status decides what happens to the job
	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(cancelled, nil)
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)
}

func TestPool_ProcessJob_DiscardsJobForCancelledCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 0)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusCancelled}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)
}

func TestPool_ProcessJob_ParksJobForPausedCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 0)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusPaused}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)

	var requeued *domain.BatchJob
	f.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, j *domain.BatchJob) (string, error) {
			requeued = j
			return "job-2", nil
		})
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)

	require.NotNil(t, requeued)
	assert.Empty(t, requeued.ID)
	assert.Equal(t, "c1", requeued.CampaignID)
	assert.Equal(t, 0, requeued.Batch.SequenceNumber)
}

func TestPool_ProcessJob_SkipsAlreadyProcessedBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 1)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, CurrentBatch: 2, TotalBatches: 3}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)
}

func TestPool_ProcessJob_DropsJobForUnknownCampaign(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("gone", 0)
	f.repo.EXPECT().GetByID(gomock.Any(), "gone").Return(nil, &domain.NotFoundError{Entity: "campaign", ID: "gone"})
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)
}

func TestPool_ProcessJob_WholeBatchFailureCountsAllRecipients(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 0)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, TotalBatches: 2}
	updated := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, FailedCount: 2, CurrentBatch: 1, TotalBatches: 2}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	f.resolver.EXPECT().Resolve(gomock.Any(), job).Return(job.Batch.Recipients, nil)
	f.sender.EXPECT().SendBatch(gomock.Any(), campaign, job.Batch.Recipients).
		Return(0, 0, NewCampaignErrorWithID(ErrCodeCircuitOpen, "circuit breaker is open, transport unavailable", "c1", true, nil))
	f.repo.EXPECT().IncrementProgress(gomock.Any(), "c1", 0, 2, 0).Return(updated, nil)
	f.sender.EXPECT().RateLimitRemaining().Return(5.0)
	f.bus.EXPECT().Publish(gomock.Any(), gomock.Any())
	f.queue.EXPECT().Ack(gomock.Any(), "job-1").Return(nil)

	f.pool.processJob(context.Background(), job)
}

func TestPool_ProcessJob_LeavesJobUnackedWhenProgressUpdateFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	job := testJob("c1", 0)
	campaign := &domain.Campaign{ID: "c1", Status: domain.CampaignStatusProcessing, ValidLeads: 4, TotalBatches: 2}

	f.repo.EXPECT().GetByID(gomock.Any(), "c1").Return(campaign, nil)
	f.resolver.EXPECT().Resolve(gomock.Any(), job).Return(job.Batch.Recipients, nil)
	f.sender.EXPECT().SendBatch(gomock.Any(), campaign, job.Batch.Recipients).Return(2, 0, nil)
	f.repo.EXPECT().IncrementProgress(gomock.Any(), "c1", 2, 0, 0).Return(nil, errors.New("connection reset"))

	// No Ack expectation: the job must stay in the queue for redelivery
	f.pool.processJob(context.Background(), job)
}

func TestPool_Run_StopsOnContextCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	f := newPoolFixture(t, ctrl)

	f.queue.EXPECT().Dequeue(gomock.Any()).DoAndReturn(
		func(ctx context.Context) (*domain.BatchJob, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.pool.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
}

func TestExpectedBatchSize(t *testing.T) {
	even := &domain.Campaign{ValidLeads: 200, TotalBatches: 2}
	assert.Equal(t, 100, expectedBatchSize(even, 0))
	assert.Equal(t, 100, expectedBatchSize(even, 1))
	assert.Equal(t, 0, expectedBatchSize(even, 2))

	uneven := &domain.Campaign{ValidLeads: 5, TotalBatches: 2}
	assert.Equal(t, 3, expectedBatchSize(uneven, 0))
	assert.Equal(t, 2, expectedBatchSize(uneven, 1))

	assert.Equal(t, 0, expectedBatchSize(&domain.Campaign{}, 0))
}
