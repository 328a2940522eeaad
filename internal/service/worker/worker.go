package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

//go:generate mockgen -destination mocks/mock_batch_resolver.go -package mocks github.com/viaforteexpress/campaign-engine/internal/service/worker BatchResolver

// BatchResolver turns a dequeued job into the recipients it covers. Internal
// jobs carry their recipients inline; external jobs are re-read from the
// stored lead source they reference.
type BatchResolver interface {
	Resolve(ctx context.Context, job *domain.BatchJob) ([]domain.Recipient, error)
}

// Pool is the bounded set of concurrent batch executors. Each executor pulls
// one job from the dispatch queue, processes it end-to-end and folds the
// outcome into the campaign record. Executors never talk to each other; all
// coordination happens through the queue and atomic campaign updates.
type Pool struct {
	queue        domain.BatchQueue
	campaignRepo domain.CampaignRepository
	sender       BatchSender
	resolver     BatchResolver
	eventBus     domain.EventBus
	logger       logger.Logger
	config       *Config
	timeProvider TimeProvider

	slots *semaphore.Weighted
	wg    sync.WaitGroup
}

// NewPool creates a new batch worker pool
func NewPool(
	queue domain.BatchQueue,
	campaignRepo domain.CampaignRepository,
	sender BatchSender,
	resolver BatchResolver,
	eventBus domain.EventBus,
	log logger.Logger,
	config *Config,
	tp TimeProvider,
) *Pool {
	if config == nil {
		config = DefaultConfig()
	}
	if tp == nil {
		tp = NewRealTimeProvider()
	}
	return &Pool{
		queue:        queue,
		campaignRepo: campaignRepo,
		sender:       sender,
		resolver:     resolver,
		eventBus:     eventBus,
		logger:       log,
		config:       config,
		timeProvider: tp,
		slots:        semaphore.NewWeighted(int64(config.MaxConcurrentBatches)),
	}
}

// Run consumes the dispatch queue until the context is cancelled, then waits
// for in-flight batches to finish. An in-flight batch always runs to
// completion; cancellation and pause are only honored at batch admission.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.WithFields(map[string]interface{}{
		"max_concurrent_batches": p.config.MaxConcurrentBatches,
		"send_concurrency":       p.config.SendConcurrency,
	}).Info("Batch worker pool started")

	for {
		if err := p.slots.Acquire(ctx, 1); err != nil {
			break
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.slots.Release(1)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			p.logger.WithField("error", err.Error()).Error("Failed to dequeue batch job")
			continue
		}

		p.wg.Add(1)
		go func(job *domain.BatchJob) {
			defer p.wg.Done()
			defer p.slots.Release(1)
			p.processJob(ctx, job)
		}(job)
	}

	p.wg.Wait()
	p.logger.Info("Batch worker pool stopped")
	return ctx.Err()
}

// processJob handles one dequeued batch job end-to-end
func (p *Pool) processJob(ctx context.Context, job *domain.BatchJob) {
	log := p.logger.WithFields(map[string]interface{}{
		"job_id":      job.ID,
		"campaign_id": job.CampaignID,
		"sequence":    job.Batch.SequenceNumber,
		"attempts":    job.Attempts,
	})

	campaign, err := p.campaignRepo.GetByID(ctx, job.CampaignID)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Warn("Dropping job for unknown campaign")
			p.ack(ctx, job, log)
			return
		}
		// Leave the job unacked so it is redelivered once the store recovers
		log.WithField("error", err.Error()).Error("Failed to load campaign for job")
		return
	}

	// A pending campaign with live jobs means the creator crashed after
	// enqueueing but before flipping it to processing; the first worker to
	// see one claims it so the campaign can still drain to a terminal state
	if campaign.Status == domain.CampaignStatusPending {
		err := p.campaignRepo.UpdateStatus(ctx, campaign.ID,
			domain.CampaignStatusPending, domain.CampaignStatusProcessing)
		switch {
		case err == nil:
			log.Info("Claimed pending campaign")
			campaign.Status = domain.CampaignStatusProcessing
		case errors.Is(err, domain.ErrStatusConflict):
			// Lost the race; reload and let admission judge the fresh status
			if campaign, err = p.campaignRepo.GetByID(ctx, job.CampaignID); err != nil {
				log.WithField("error", err.Error()).Error("Failed to reload campaign for job")
				return
			}
		default:
			log.WithField("error", err.Error()).Error("Failed to claim pending campaign")
			return
		}
	}

	// Admission control: pause parks the job, cancel discards it, any other
	// terminal state means the job is stale
	switch campaign.Status {
	case domain.CampaignStatusPaused:
		p.parkJob(ctx, job, log)
		return
	case domain.CampaignStatusCancelled, domain.CampaignStatusCompleted, domain.CampaignStatusFailed:
		log.WithField("status", string(campaign.Status)).Info("Discarding job for finished campaign")
		p.ack(ctx, job, log)
		return
	}

	// At-least-once delivery means a batch can arrive twice; a sequence the
	// campaign has already counted is acked without resending
	if job.Batch.SequenceNumber < campaign.CurrentBatch {
		log.Info("Skipping already-processed batch")
		p.ack(ctx, job, log)
		return
	}

	recipients, err := p.resolver.Resolve(ctx, job)
	sent, failed := 0, 0
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to resolve batch recipients")
		failed = expectedBatchSize(campaign, job.Batch.SequenceNumber)
	} else {
		sent, failed, err = p.sender.SendBatch(ctx, campaign, recipients)
		if err != nil {
			// Whole-batch failure: every unattempted recipient counts as
			// failed and the campaign moves on to the next batch
			log.WithField("error", err.Error()).Error("Batch send failed")
			failed = len(recipients) - sent
		}
	}

	updated, err := p.campaignRepo.IncrementProgress(ctx, campaign.ID, sent, failed, job.Batch.SequenceNumber)
	if err != nil {
		// Redelivery will retry the whole batch; recipients may receive
		// duplicates, which at-least-once delivery permits
		log.WithField("error", err.Error()).Error("Failed to record batch progress")
		return
	}

	p.eventBus.Publish(ctx, domain.EventPayload{
		Type:       domain.EventCampaignProgress,
		CampaignID: updated.ID,
		Progress:   updated.Progress(p.sender.RateLimitRemaining()),
	})

	if updated.CurrentBatch >= updated.TotalBatches {
		p.completeCampaign(ctx, updated, log)
	}

	p.ack(ctx, job, log)
}

// parkJob puts a job for a paused campaign back at the tail of the queue
// after a short delay, freeing the worker slot for other campaigns
func (p *Pool) parkJob(ctx context.Context, job *domain.BatchJob, log logger.Logger) {
	log.Info("Campaign paused, parking batch job")
	if err := p.timeProvider.Sleep(ctx, p.config.PauseRequeueDelay); err != nil {
		// Shutting down; the unacked job will be redelivered on restart
		return
	}

	requeued := *job
	requeued.ID = ""
	if _, err := p.queue.Enqueue(ctx, &requeued); err != nil {
		log.WithField("error", err.Error()).Error("Failed to requeue parked job")
		// Do not ack; redelivery keeps the batch alive
		return
	}
	p.ack(ctx, job, log)
}

// completeCampaign transitions a fully drained campaign to its terminal state
func (p *Pool) completeCampaign(ctx context.Context, campaign *domain.Campaign, log logger.Logger) {
	err := p.campaignRepo.UpdateStatus(ctx, campaign.ID, domain.CampaignStatusProcessing, domain.CampaignStatusCompleted)
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			// Someone cancelled or paused between the last batch and now;
			// their transition wins
			log.Info("Campaign no longer processing, skipping completion")
			return
		}
		log.WithField("error", err.Error()).Error("Failed to complete campaign")
		return
	}

	final, err := p.campaignRepo.GetByID(ctx, campaign.ID)
	if err != nil {
		final = campaign
	}
	log.WithFields(map[string]interface{}{
		"sent_count":   final.SentCount,
		"failed_count": final.FailedCount,
	}).Info("Campaign completed")

	p.eventBus.Publish(ctx, domain.EventPayload{
		Type:       domain.EventCampaignCompleted,
		CampaignID: campaign.ID,
		Progress:   final.Progress(p.sender.RateLimitRemaining()),
	})
}

func (p *Pool) ack(ctx context.Context, job *domain.BatchJob, log logger.Logger) {
	if err := p.queue.Ack(ctx, job.ID); err != nil && !domain.IsNotFound(err) {
		log.WithField("error", err.Error()).Error("Failed to ack batch job")
	}
}

// expectedBatchSize estimates how many recipients a batch covers when its
// contents could not be resolved, so the failure count stays meaningful
func expectedBatchSize(campaign *domain.Campaign, sequence int) int {
	if campaign.TotalBatches <= 0 || campaign.ValidLeads <= 0 {
		return 0
	}
	size := (campaign.ValidLeads + campaign.TotalBatches - 1) / campaign.TotalBatches
	remaining := campaign.ValidLeads - sequence*size
	if remaining < 0 {
		return 0
	}
	if remaining < size {
		return remaining
	}
	return size
}
