package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadClean(t *testing.T) (*Config, error) {
	t.Helper()
	return LoadWithOptions(LoadOptions{})
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadClean(t)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "campaigns", cfg.Database.DBName)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, int64(5*1024*1024), cfg.Ingest.StreamingThresholdBytes)
	assert.Equal(t, 3, cfg.Worker.MaxConcurrentBatches)
	assert.Equal(t, 5, cfg.Worker.SendConcurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.Worker.RateLimitDelay)
	assert.Equal(t, "postgres", cfg.Queue.Driver)
	assert.Equal(t, time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, "smtp", cfg.Mailer.Driver)
}

func TestLoadFromEnvironment(t *testing.T) {
	os.Setenv("BATCH_SIZE", "50")
	os.Setenv("MAX_CONCURRENT_BATCHES", "7")
	os.Setenv("QUEUE_DRIVER", "amqp")
	defer func() {
		os.Unsetenv("BATCH_SIZE")
		os.Unsetenv("MAX_CONCURRENT_BATCHES")
		os.Unsetenv("QUEUE_DRIVER")
	}()

	cfg, err := loadClean(t)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Ingest.BatchSize)
	assert.Equal(t, 7, cfg.Worker.MaxConcurrentBatches)
	assert.Equal(t, "amqp", cfg.Queue.Driver)
}

func TestLoadRejectsUnknownQueueDriver(t *testing.T) {
	os.Setenv("QUEUE_DRIVER", "kafka")
	defer os.Unsetenv("QUEUE_DRIVER")

	_, err := loadClean(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_DRIVER")
}

func TestLoadRejectsNonPositiveBatchSize(t *testing.T) {
	os.Setenv("BATCH_SIZE", "0")
	defer os.Unsetenv("BATCH_SIZE")

	_, err := loadClean(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "svc",
		Password: "pw",
		DBName:   "campaigns",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=svc password=pw dbname=campaigns sslmode=disable",
		db.ConnectionString())
}
