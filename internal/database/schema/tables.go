package schema

// TableDefinitions contains all the SQL statements to create the database tables
// Don't put REFERENCES and don't put CHECK constraints in the CREATE TABLE statements
var TableDefinitions = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		offer_config JSONB,
		status VARCHAR(20) NOT NULL,
		total_leads INTEGER NOT NULL DEFAULT 0,
		valid_leads INTEGER NOT NULL DEFAULT 0,
		rejected_leads INTEGER NOT NULL DEFAULT 0,
		sent_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		current_batch INTEGER NOT NULL DEFAULT 0,
		total_batches INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status)`,
	`CREATE TABLE IF NOT EXISTS batch_jobs (
		id UUID PRIMARY KEY,
		campaign_id UUID NOT NULL,
		kind VARCHAR(20) NOT NULL,
		payload JSONB NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		claimed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_jobs_status_created ON batch_jobs(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_jobs_campaign ON batch_jobs(campaign_id)`,
	`CREATE TABLE IF NOT EXISTS send_failures (
		id BIGSERIAL PRIMARY KEY,
		campaign_id UUID NOT NULL,
		email VARCHAR(255) NOT NULL,
		reason VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_send_failures_campaign ON send_failures(campaign_id)`,
}
