package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/internal/service/ingest"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

// CampaignService orchestrates campaign creation and lifecycle control. It
// owns the transition from a raw lead list to enqueued batch jobs; batch
// execution belongs to the worker pool.
type CampaignService struct {
	repo          domain.CampaignRepository
	queue         domain.BatchQueue
	ingestor      *ingest.Ingestor
	eventBus      domain.EventBus
	logger        logger.Logger
	batchSize     int
	sourceDir     string
	rateRemaining func() float64
}

// NewCampaignService creates a new campaign service. rateRemaining reports
// the sender's available rate limiter tokens for progress snapshots; it may
// be nil.
func NewCampaignService(
	repo domain.CampaignRepository,
	queue domain.BatchQueue,
	ingestor *ingest.Ingestor,
	eventBus domain.EventBus,
	log logger.Logger,
	batchSize int,
	sourceDir string,
	rateRemaining func() float64,
) *CampaignService {
	if batchSize <= 0 {
		batchSize = 100
	}
	if rateRemaining == nil {
		rateRemaining = func() float64 { return 0 }
	}
	return &CampaignService{
		repo:          repo,
		queue:         queue,
		ingestor:      ingestor,
		eventBus:      eventBus,
		logger:        log,
		batchSize:     batchSize,
		sourceDir:     sourceDir,
		rateRemaining: rateRemaining,
	}
}

// CreateCampaign ingests the lead list, persists the campaign and enqueues
// one job per batch. Ingestion failure aborts before anything is persisted,
// so a malformed source never leaves a partial campaign behind.
func (s *CampaignService) CreateCampaign(ctx context.Context, req *domain.CreateCampaignRequest) (*domain.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		result *ingest.Result
		err    error
	)
	if req.SourceRef != "" {
		result, err = s.ingestSource(req.SourceRef)
		if err != nil {
			return nil, err
		}
	} else {
		result = s.ingestor.IngestLeads(req.Leads)
	}

	if result.ValidLeads == 0 {
		return nil, domain.NewValidationError("no valid leads in the provided list")
	}

	totalBatches := (result.ValidLeads + s.batchSize - 1) / s.batchSize
	campaign := &domain.Campaign{
		ID:            uuid.New().String(),
		Name:          req.Name,
		OfferConfig:   req.OfferConfig,
		Status:        domain.CampaignStatusPending,
		TotalLeads:    result.TotalLeads,
		ValidLeads:    result.ValidLeads,
		RejectedLeads: result.RejectedLeads,
		TotalBatches:  totalBatches,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	if err := s.enqueueBatches(ctx, campaign, req.SourceRef, result.Recipients); err != nil {
		// The campaign exists but its batches are not fully queued; fail it
		// so it never sits in pending forever
		if updErr := s.repo.UpdateStatus(ctx, campaign.ID, domain.CampaignStatusPending, domain.CampaignStatusFailed); updErr != nil {
			s.logger.WithFields(map[string]interface{}{
				"campaign_id": campaign.ID,
				"error":       updErr.Error(),
			}).Error("Failed to mark campaign as failed after enqueue error")
		} else {
			s.publishLifecycleEvent(ctx, campaign, domain.CampaignStatusFailed, domain.EventCampaignFailed)
		}
		return nil, fmt.Errorf("failed to enqueue campaign batches: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, campaign.ID, domain.CampaignStatusPending, domain.CampaignStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to start campaign: %w", err)
	}
	campaign.Status = domain.CampaignStatusProcessing

	s.logger.WithFields(map[string]interface{}{
		"campaign_id":    campaign.ID,
		"total_leads":    campaign.TotalLeads,
		"valid_leads":    campaign.ValidLeads,
		"rejected_leads": campaign.RejectedLeads,
		"total_batches":  campaign.TotalBatches,
	}).Info("Campaign created")

	s.eventBus.Publish(ctx, domain.EventPayload{
		Type:       domain.EventCampaignCreated,
		CampaignID: campaign.ID,
		Progress:   campaign.Progress(s.rateRemaining()),
	})

	return campaign, nil
}

// ingestSource reads and validates an external lead source file. The ref is
// reduced to its base name so it cannot escape the source directory.
func (s *CampaignService) ingestSource(sourceRef string) (*ingest.Result, error) {
	path := filepath.Join(s.sourceDir, filepath.Base(sourceRef))

	file, err := os.Open(path)
	if err != nil {
		return nil, &domain.IngestionError{Reason: "failed to open lead source", Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, &domain.IngestionError{Reason: "failed to stat lead source", Err: err}
	}
	return s.ingestor.IngestReader(file, info.Size())
}

// enqueueBatches submits one job per batch. Inline leads travel in the job
// payload; an external source is referenced by name and re-read by the worker.
func (s *CampaignService) enqueueBatches(ctx context.Context, campaign *domain.Campaign, sourceRef string, recipients []domain.Recipient) error {
	if sourceRef == "" {
		for _, batch := range ingest.MakeBatches(campaign.ID, recipients, s.batchSize) {
			b := batch
			job := &domain.BatchJob{
				Kind:       domain.JobKindInternalLeads,
				CampaignID: campaign.ID,
				Batch:      &b,
			}
			if _, err := s.queue.Enqueue(ctx, job); err != nil {
				return err
			}
		}
		return nil
	}

	for seq := 0; seq < campaign.TotalBatches; seq++ {
		job := &domain.BatchJob{
			Kind:       domain.JobKindExternalLeads,
			CampaignID: campaign.ID,
			SourceRef:  filepath.Base(sourceRef),
			Batch:      &domain.Batch{CampaignID: campaign.ID, SequenceNumber: seq},
		}
		if _, err := s.queue.Enqueue(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// PauseCampaign transitions a processing campaign to paused
func (s *CampaignService) PauseCampaign(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignStatusProcessing, domain.CampaignStatusPaused, domain.EventCampaignPaused)
}

// ResumeCampaign transitions a paused campaign back to processing
func (s *CampaignService) ResumeCampaign(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.CampaignStatusPaused, domain.CampaignStatusProcessing, domain.EventCampaignResumed)
}

// CancelCampaign cancels a non-terminal campaign and drops its queued
// batches. An in-flight batch finishes delivering; the workers discard
// everything else at admission.
func (s *CampaignService) CancelCampaign(ctx context.Context, id string) error {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !campaign.CanTransitionTo(domain.CampaignStatusCancelled) {
		return &domain.InvalidStateError{
			CampaignID: id,
			Current:    string(campaign.Status),
			Requested:  string(domain.CampaignStatusCancelled),
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, campaign.Status, domain.CampaignStatusCancelled); err != nil {
		return s.mapStatusConflict(ctx, id, domain.CampaignStatusCancelled, err)
	}

	discarded, err := s.queue.DiscardCampaign(ctx, id)
	if err != nil {
		// The campaign is already cancelled; workers will drop any jobs the
		// discard missed at admission time
		s.logger.WithFields(map[string]interface{}{
			"campaign_id": id,
			"error":       err.Error(),
		}).Warn("Failed to discard queued batches for cancelled campaign")
	}

	s.logger.WithFields(map[string]interface{}{
		"campaign_id":    id,
		"discarded_jobs": discarded,
	}).Info("Campaign cancelled")

	s.publishLifecycleEvent(ctx, campaign, domain.CampaignStatusCancelled, domain.EventCampaignCancelled)
	return nil
}

// GetCampaign retrieves a campaign by ID
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

// ListCampaigns retrieves campaigns with optional filtering
func (s *CampaignService) ListCampaigns(ctx context.Context, params domain.ListCampaignsParams) (*domain.CampaignListResponse, error) {
	campaigns, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}
	return &domain.CampaignListResponse{
		Campaigns:  campaigns,
		TotalCount: total,
	}, nil
}

// transition performs a single compare-and-set lifecycle transition
func (s *CampaignService) transition(ctx context.Context, id string, from, to domain.CampaignStatus, eventType domain.EventType) error {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status != from || !campaign.CanTransitionTo(to) {
		return &domain.InvalidStateError{
			CampaignID: id,
			Current:    string(campaign.Status),
			Requested:  string(to),
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, from, to); err != nil {
		return s.mapStatusConflict(ctx, id, to, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"campaign_id": id,
		"from":        string(from),
		"to":          string(to),
	}).Info("Campaign status changed")

	s.publishLifecycleEvent(ctx, campaign, to, eventType)
	return nil
}

// mapStatusConflict converts a lost compare-and-set race into the same
// invalid-state error a caller would have seen had it read the fresh status
func (s *CampaignService) mapStatusConflict(ctx context.Context, id string, requested domain.CampaignStatus, err error) error {
	if !errors.Is(err, domain.ErrStatusConflict) {
		return err
	}
	current, getErr := s.repo.GetByID(ctx, id)
	if getErr != nil {
		return err
	}
	return &domain.InvalidStateError{
		CampaignID: id,
		Current:    string(current.Status),
		Requested:  string(requested),
	}
}

func (s *CampaignService) publishLifecycleEvent(ctx context.Context, campaign *domain.Campaign, status domain.CampaignStatus, eventType domain.EventType) {
	snapshot := *campaign
	snapshot.Status = status
	s.eventBus.Publish(ctx, domain.EventPayload{
		Type:       eventType,
		CampaignID: campaign.ID,
		Progress:   snapshot.Progress(s.rateRemaining()),
	})
}
