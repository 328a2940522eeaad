package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/viaforteexpress/campaign-engine/config"
	"github.com/viaforteexpress/campaign-engine/internal/database"
	"github.com/viaforteexpress/campaign-engine/internal/domain"
	apphttp "github.com/viaforteexpress/campaign-engine/internal/http"
	"github.com/viaforteexpress/campaign-engine/internal/repository"
	"github.com/viaforteexpress/campaign-engine/internal/service"
	"github.com/viaforteexpress/campaign-engine/internal/service/ingest"
	"github.com/viaforteexpress/campaign-engine/internal/service/progress"
	"github.com/viaforteexpress/campaign-engine/internal/service/worker"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
	"github.com/viaforteexpress/campaign-engine/pkg/mailer"
)

// App wires the campaign engine together: database, dispatch queue, worker
// pool, progress hub and the HTTP surface
type App struct {
	config *config.Config
	logger logger.Logger

	db     *sql.DB
	mailer mailer.Mailer

	campaignRepo    domain.CampaignRepository
	sendFailureRepo *repository.SendFailureRepository
	queue           domain.BatchQueue
	queueCloser     func() error

	eventBus        *domain.InMemoryEventBus
	ingestor        *ingest.Ingestor
	sender          worker.BatchSender
	pool            *worker.Pool
	campaignService *service.CampaignService
	hub             *progress.Hub

	mux        *http.ServeMux
	server     *http.Server
	poolCancel context.CancelFunc
	poolDone   chan struct{}
}

// AppOption configures the App before initialization
type AppOption func(*App)

// WithLogger sets a custom logger
func WithLogger(log logger.Logger) AppOption {
	return func(a *App) {
		a.logger = log
	}
}

// WithMockDB sets a database handle, skipping the real connection
func WithMockDB(db *sql.DB) AppOption {
	return func(a *App) {
		a.db = db
	}
}

// WithMockMailer sets a mailer, skipping the SMTP client
func WithMockMailer(m mailer.Mailer) AppOption {
	return func(a *App) {
		a.mailer = m
	}
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, opts ...AppOption) *App {
	a := &App{
		config: cfg,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.NewLoggerWithLevel(cfg.LogLevel)
	}
	return a
}

// InitDB connects to Postgres and ensures the schema exists
func (a *App) InitDB() error {
	if a.db == nil {
		db, err := database.Connect(&a.config.Database)
		if err != nil {
			return err
		}
		a.db = db
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.InitializeSchema(ctx, a.db); err != nil {
		return err
	}

	a.logger.WithField("database", a.config.Database.DBName).Info("Database initialized")
	return nil
}

// InitMailer sets up the outbound email transport
func (a *App) InitMailer() error {
	if a.mailer != nil {
		return nil
	}

	if a.config.Mailer.Driver == "http" {
		a.mailer = mailer.NewHTTPMailer(a.config.Mailer.HTTPEndpoint, a.config.Mailer.HTTPAPIKey)
		a.logger.WithField("endpoint", a.config.Mailer.HTTPEndpoint).Info("Using HTTP mailer")
		return nil
	}

	smtpConfig := &mailer.Config{
		SMTPHost:     a.config.SMTP.Host,
		SMTPPort:     a.config.SMTP.Port,
		SMTPUsername: a.config.SMTP.Username,
		SMTPPassword: a.config.SMTP.Password,
		FromEmail:    a.config.SMTP.FromEmail,
		FromName:     a.config.SMTP.FromName,
	}
	if a.config.IsDevelopment() {
		a.mailer = mailer.NewTestSMTPMailer(smtpConfig)
		a.logger.Info("Using test SMTP mailer")
	} else {
		a.mailer = mailer.NewSMTPMailer(smtpConfig)
	}
	return nil
}

// InitRepositories creates the persistence layer
func (a *App) InitRepositories() error {
	a.campaignRepo = repository.NewCampaignRepository(a.db)
	a.sendFailureRepo = repository.NewSendFailureRepository(a.db)
	return nil
}

// InitQueue creates the dispatch queue for the configured driver
func (a *App) InitQueue() error {
	switch a.config.Queue.Driver {
	case "amqp":
		q, err := repository.NewAMQPQueue(a.config.Queue.AMQPURL, a.config.Queue.AMQPQueueName, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		a.queue = q
		a.queueCloser = q.Close
	default:
		a.queue = repository.NewPostgresQueue(a.db, &repository.PostgresQueueConfig{
			PollInterval:      a.config.Queue.PollInterval,
			VisibilityTimeout: a.config.Queue.VisibilityTimeout,
		}, a.logger)
	}

	a.logger.WithField("driver", a.config.Queue.Driver).Info("Dispatch queue initialized")
	return nil
}

// InitServices creates the event bus, ingestor, sender, worker pool,
// campaign service and progress hub
func (a *App) InitServices() error {
	a.eventBus = domain.NewInMemoryEventBus()
	a.ingestor = ingest.NewIngestor(a.config.Ingest.StreamingThresholdBytes, a.logger)

	workerConfig := &worker.Config{
		MaxConcurrentBatches:    a.config.Worker.MaxConcurrentBatches,
		SendConcurrency:         a.config.Worker.SendConcurrency,
		RateLimitDelay:          a.config.Worker.RateLimitDelay,
		RatePerMinute:           a.config.Worker.RatePerMinute,
		EnableCircuitBreaker:    a.config.Worker.CircuitBreakerThreshold > 0,
		CircuitBreakerThreshold: a.config.Worker.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  a.config.Worker.CircuitBreakerCooldown,
		PauseRequeueDelay:       a.config.Worker.PauseRequeueDelay,
	}

	a.sender = worker.NewBatchSender(a.mailer, a.sendFailureRepo, a.logger, workerConfig, nil)
	resolver := worker.NewLeadSourceResolver(a.ingestor, a.config.Ingest.LeadSourceDir, a.config.Ingest.BatchSize, a.logger)
	a.pool = worker.NewPool(a.queue, a.campaignRepo, a.sender, resolver, a.eventBus, a.logger, workerConfig, nil)

	a.campaignService = service.NewCampaignService(
		a.campaignRepo,
		a.queue,
		a.ingestor,
		a.eventBus,
		a.logger,
		a.config.Ingest.BatchSize,
		a.config.Ingest.LeadSourceDir,
		a.sender.RateLimitRemaining,
	)

	a.hub = progress.NewHub(a.campaignRepo, a.eventBus, a.logger, a.sender.RateLimitRemaining)
	return nil
}

// InitHandlers registers the HTTP surface on the mux
func (a *App) InitHandlers() error {
	apphttp.NewCampaignHandler(a.campaignService, a.logger).RegisterRoutes(a.mux)
	apphttp.NewWebsocketHandler(a.hub).RegisterRoutes(a.mux)
	apphttp.NewHealthHandler(a.db, a.config.Version).RegisterRoutes(a.mux)
	return nil
}

// Initialize runs all initialization steps in order
func (a *App) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", a.InitDB},
		{"mailer", a.InitMailer},
		{"repositories", a.InitRepositories},
		{"queue", a.InitQueue},
		{"services", a.InitServices},
		{"handlers", a.InitHandlers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}
	return nil
}

// Start runs the worker pool and serves HTTP until Shutdown is called
func (a *App) Start() error {
	poolCtx, cancel := context.WithCancel(context.Background())
	a.poolCancel = cancel
	a.poolDone = make(chan struct{})
	go func() {
		defer close(a.poolDone)
		a.pool.Run(poolCtx)
	}()

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	a.logger.WithField("addr", addr).Info("HTTP server listening")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes observer sessions cleanly, lets
// in-flight batches finish and releases all resources
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.hub != nil {
		a.hub.Shutdown()
	}

	if a.poolCancel != nil {
		a.poolCancel()
		select {
		case <-a.poolDone:
		case <-ctx.Done():
			a.logger.Warn("Timed out waiting for in-flight batches to finish")
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}

	if a.queueCloser != nil {
		if err := a.queueCloser(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.logger.Info("Shutdown complete")
	return firstErr
}

// GetMux exposes the HTTP mux, mainly for tests
func (a *App) GetMux() *http.ServeMux {
	return a.mux
}

// GetLogger exposes the application logger
func (a *App) GetLogger() logger.Logger {
	return a.logger
}
