package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

// PostgresQueueConfig holds the tunables of the Postgres-backed dispatch queue
type PostgresQueueConfig struct {
	PollInterval      time.Duration // how often Dequeue polls for new work (default: 1s)
	VisibilityTimeout time.Duration // claimed jobs older than this are redelivered (default: 5m)
}

// DefaultPostgresQueueConfig returns sensible default configuration
func DefaultPostgresQueueConfig() *PostgresQueueConfig {
	return &PostgresQueueConfig{
		PollInterval:      time.Second,
		VisibilityTimeout: 5 * time.Minute,
	}
}

// PostgresQueue implements domain.BatchQueue on a batch_jobs table.
// Jobs survive process restarts; a claimed job whose worker died is redelivered
// after the visibility timeout, giving at-least-once delivery. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim a live row.
type PostgresQueue struct {
	db     *sql.DB
	config *PostgresQueueConfig
	logger logger.Logger
}

// NewPostgresQueue creates a new Postgres-backed dispatch queue
func NewPostgresQueue(db *sql.DB, config *PostgresQueueConfig, log logger.Logger) *PostgresQueue {
	if config == nil {
		config = DefaultPostgresQueueConfig()
	}
	return &PostgresQueue{
		db:     db,
		config: config,
		logger: log,
	}
}

// Enqueue validates and persists a job, returning its queue ID
func (q *PostgresQueue) Enqueue(ctx context.Context, job *domain.BatchJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	job.ID = jobID

	payload, err := job.MarshalPayload()
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO batch_jobs (id, campaign_id, kind, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, $5, $5)
	`
	now := time.Now().UTC()
	if _, err := q.db.ExecContext(ctx, query, jobID, job.CampaignID, job.Kind, payload, now); err != nil {
		return "", fmt.Errorf("failed to enqueue batch job: %w", err)
	}
	return jobID, nil
}

// Dequeue blocks until a job is available or the context is cancelled. Polling
// keeps the implementation restart-safe with no broker dependency.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*domain.BatchJob, error) {
	for {
		job, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.config.PollInterval):
		}
	}
}

// claim attempts to claim one deliverable job. Returns (nil, nil) when the
// queue is empty.
func (q *PostgresQueue) claim(ctx context.Context) (*domain.BatchJob, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	cutoff := now.Add(-q.config.VisibilityTimeout)

	selectQuery := `
		SELECT id, payload, attempts
		FROM batch_jobs
		WHERE status = 'pending'
		   OR (status = 'processing' AND claimed_at < $1)
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var jobID string
	var payload []byte
	var attempts int
	err = tx.QueryRowContext(ctx, selectQuery, cutoff).Scan(&jobID, &payload, &attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim batch job: %w", err)
	}

	updateQuery := `
		UPDATE batch_jobs
		SET status = 'processing', attempts = attempts + 1, claimed_at = $1, updated_at = $1
		WHERE id = $2
	`
	if _, err := tx.ExecContext(ctx, updateQuery, now, jobID); err != nil {
		return nil, fmt.Errorf("failed to mark batch job as processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job, err := domain.UnmarshalBatchJob(payload)
	if err != nil {
		// Poison payload: drop it so it cannot wedge the queue
		q.logger.WithFields(map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		}).Error("Dropping undecodable batch job")
		if ackErr := q.Ack(ctx, jobID); ackErr != nil {
			return nil, ackErr
		}
		return nil, nil
	}

	job.ID = jobID
	job.Attempts = attempts + 1
	return job, nil
}

// Ack removes a delivered job from the queue
func (q *PostgresQueue) Ack(ctx context.Context, jobID string) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM batch_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to ack batch job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check ack: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Entity: "batch job", ID: jobID}
	}
	return nil
}

// DiscardCampaign drops all not-yet-claimed jobs for a campaign. In-flight
// jobs are unaffected; workers discard those at admission time.
func (q *PostgresQueue) DiscardCampaign(ctx context.Context, campaignID string) (int, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM batch_jobs WHERE campaign_id = $1 AND status = 'pending'`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("failed to discard campaign jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count discarded jobs: %w", err)
	}

	q.logger.WithFields(map[string]interface{}{
		"campaign_id": campaignID,
		"discarded":   affected,
	}).Info("Discarded pending batch jobs")

	return int(affected), nil
}
