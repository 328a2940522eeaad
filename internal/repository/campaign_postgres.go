package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
)

// CampaignRepository implements the domain.CampaignRepository interface using
// PostgreSQL. Counter updates for a given campaign are serialized by the
// database row lock, so sent_count + failed_count never exceeds valid_leads
// even under concurrent batch completion.
type CampaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new CampaignRepository instance
func NewCampaignRepository(db *sql.DB) domain.CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `
	id, name, offer_config, status,
	total_leads, valid_leads, rejected_leads,
	sent_count, failed_count, current_batch, total_batches,
	created_at, updated_at, started_at, finished_at
`

// Create adds a new campaign
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	if campaign.ID == "" {
		campaign.ID = uuid.New().String()
	}
	if campaign.Status == "" {
		campaign.Status = domain.CampaignStatusPending
	}

	now := time.Now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now

	configJSON, err := json.Marshal(campaign.OfferConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal offer config: %w", err)
	}

	query := `
		INSERT INTO campaigns (
			id, name, offer_config, status,
			total_leads, valid_leads, rejected_leads,
			sent_count, failed_count, current_batch, total_batches,
			created_at, updated_at, started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		campaign.ID,
		campaign.Name,
		configJSON,
		campaign.Status,
		campaign.TotalLeads,
		campaign.ValidLeads,
		campaign.RejectedLeads,
		campaign.SentCount,
		campaign.FailedCount,
		campaign.CurrentBatch,
		campaign.TotalBatches,
		campaign.CreatedAt,
		campaign.UpdatedAt,
		campaign.StartedAt,
		campaign.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by ID
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	campaign, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "campaign", ID: id}
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

// List retrieves campaigns with optional filtering, newest first
func (r *CampaignRepository) List(ctx context.Context, params domain.ListCampaignsParams) ([]*domain.Campaign, int, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	countQuery := psql.Select("COUNT(*)").From("campaigns")
	dataQuery := psql.Select(
		"id", "name", "offer_config", "status",
		"total_leads", "valid_leads", "rejected_leads",
		"sent_count", "failed_count", "current_batch", "total_batches",
		"created_at", "updated_at", "started_at", "finished_at",
	).From("campaigns")

	if len(params.Status) > 0 {
		statusStrings := make([]string, len(params.Status))
		for i, s := range params.Status {
			statusStrings[i] = string(s)
		}
		countQuery = countQuery.Where(sq.Eq{"status": statusStrings})
		dataQuery = dataQuery.Where(sq.Eq{"status": statusStrings})
	}

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	dataQuery = dataQuery.OrderBy("created_at DESC")
	if params.Limit > 0 {
		dataQuery = dataQuery.Limit(uint64(params.Limit))
	}
	if params.Offset > 0 {
		dataQuery = dataQuery.Offset(uint64(params.Offset))
	}

	dataSQL, dataArgs, err := dataQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*domain.Campaign
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate campaigns: %w", err)
	}

	return campaigns, total, nil
}

// UpdateStatus performs a compare-and-set status transition. started_at is set
// on the first move to processing and finished_at on any terminal status.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus) error {
	now := time.Now().UTC()

	query := `
		UPDATE campaigns
		SET status = $1,
			updated_at = $2,
			started_at = CASE WHEN $1 = 'processing' THEN COALESCE(started_at, $2) ELSE started_at END,
			finished_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN $2 ELSE finished_at END
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, to, now, id, from)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		// Either the campaign is gone or someone else moved it first
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrStatusConflict
	}
	return nil
}

// IncrementProgress atomically folds a processed batch into the campaign
// counters and advances current_batch past the processed sequence. Returns the
// updated campaign so callers can detect completion.
func (r *CampaignRepository) IncrementProgress(ctx context.Context, id string, sent, failed, sequence int) (*domain.Campaign, error) {
	query := `
		UPDATE campaigns
		SET sent_count = sent_count + $1,
			failed_count = failed_count + $2,
			current_batch = GREATEST(current_batch, $3 + 1),
			updated_at = $4
		WHERE id = $5
		RETURNING ` + campaignColumns

	row := r.db.QueryRowContext(ctx, query, sent, failed, sequence, time.Now().UTC(), id)

	campaign, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "campaign", ID: id}
		}
		return nil, fmt.Errorf("failed to increment campaign progress: %w", err)
	}
	return campaign, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var campaign domain.Campaign
	var configJSON []byte

	err := row.Scan(
		&campaign.ID,
		&campaign.Name,
		&configJSON,
		&campaign.Status,
		&campaign.TotalLeads,
		&campaign.ValidLeads,
		&campaign.RejectedLeads,
		&campaign.SentCount,
		&campaign.FailedCount,
		&campaign.CurrentBatch,
		&campaign.TotalBatches,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
		&campaign.StartedAt,
		&campaign.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &campaign.OfferConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal offer config: %w", err)
		}
	}
	return &campaign, nil
}
