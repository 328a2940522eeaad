package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SendFailureRepository persists per-recipient failure reasons. Best effort:
// the aggregate failed counter on the campaign is the required contract, this
// table only adds diagnostics.
type SendFailureRepository struct {
	db *sql.DB
}

// NewSendFailureRepository creates a new SendFailureRepository instance
func NewSendFailureRepository(db *sql.DB) *SendFailureRepository {
	return &SendFailureRepository{db: db}
}

// Record stores one failure reason, truncated to fit the column
func (r *SendFailureRepository) Record(ctx context.Context, campaignID, email, reason string) error {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO send_failures (campaign_id, email, reason, created_at) VALUES ($1, $2, $3, $4)`,
		campaignID, email, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record send failure: %w", err)
	}
	return nil
}

// CountByCampaign returns the number of recorded failures for a campaign
func (r *SendFailureRepository) CountByCampaign(ctx context.Context, campaignID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM send_failures WHERE campaign_id = $1`, campaignID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count send failures: %w", err)
	}
	return count, nil
}
