package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
	"github.com/viaforteexpress/campaign-engine/pkg/mailer"
)

//go:generate mockgen -destination mocks/mock_batch_sender.go -package mocks github.com/viaforteexpress/campaign-engine/internal/service/worker BatchSender

// BatchSender sends one campaign batch to the outbound email transport
type BatchSender interface {
	// SendBatch sends one email per recipient. Per-recipient failures are
	// counted and recorded but never abort the batch; the returned error is
	// non-nil only when the whole batch could not be attempted.
	SendBatch(ctx context.Context, campaign *domain.Campaign, recipients []domain.Recipient) (sent int, failed int, err error)

	// RateLimitRemaining reports the sender's currently available rate
	// limiter tokens, for progress reporting
	RateLimitRemaining() float64
}

// FailureRecorder persists per-recipient send failures for later inspection
type FailureRecorder interface {
	Record(ctx context.Context, campaignID, email, reason string) error
}

// batchSender implements the BatchSender interface
type batchSender struct {
	mailer         mailer.Mailer
	failures       FailureRecorder
	logger         logger.Logger
	config         *Config
	circuitBreaker *CircuitBreaker
	limiter        *rate.Limiter
	timeProvider   TimeProvider
}

// NewBatchSender creates a new batch sender
func NewBatchSender(m mailer.Mailer, failures FailureRecorder, log logger.Logger, config *Config, tp TimeProvider) BatchSender {
	if config == nil {
		config = DefaultConfig()
	}
	if tp == nil {
		tp = NewRealTimeProvider()
	}

	var cb *CircuitBreaker
	if config.EnableCircuitBreaker {
		cb = NewCircuitBreaker(config.CircuitBreakerThreshold, config.CircuitBreakerCooldown)
	}

	// The per-minute budget is enforced as a token bucket with one sub-group
	// of burst, on top of the fixed inter-group delay
	perSecond := rate.Limit(float64(config.RatePerMinute) / 60.0)
	if perSecond <= 0 {
		perSecond = 1
	}

	return &batchSender{
		mailer:         m,
		failures:       failures,
		logger:         log,
		config:         config,
		circuitBreaker: cb,
		limiter:        rate.NewLimiter(perSecond, config.SendConcurrency),
		timeProvider:   tp,
	}
}

func (s *batchSender) SendBatch(ctx context.Context, campaign *domain.Campaign, recipients []domain.Recipient) (int, int, error) {
	if s.circuitBreaker != nil && s.circuitBreaker.IsOpen() {
		return 0, 0, NewCampaignErrorWithID(ErrCodeCircuitOpen,
			"circuit breaker is open, transport unavailable", campaign.ID, true, nil)
	}

	var (
		mu     sync.Mutex
		sent   int
		failed int
	)

	groupSize := s.config.SendConcurrency
	if groupSize < 1 {
		groupSize = 1
	}
	sem := semaphore.NewWeighted(int64(groupSize))

	for start := 0; start < len(recipients); start += groupSize {
		end := start + groupSize
		if end > len(recipients) {
			end = len(recipients)
		}
		group := recipients[start:end]

		// Fixed delay between groups, scaled down when the group ahead is a
		// trailing partial one
		if start > 0 {
			delay := s.config.RateLimitDelay * time.Duration(len(group)) / time.Duration(groupSize)
			if err := s.timeProvider.Sleep(ctx, delay); err != nil {
				return sent, failed, NewCampaignErrorWithID(ErrCodeSendFailed,
					"batch interrupted", campaign.ID, true, err)
			}
		}

		var wg sync.WaitGroup
		for _, recipient := range group {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context cancelled mid-batch, report what we have so far
				wg.Wait()
				return sent, failed, NewCampaignErrorWithID(ErrCodeSendFailed,
					"batch interrupted", campaign.ID, true, err)
			}
			wg.Add(1)
			go func(r domain.Recipient) {
				defer wg.Done()
				defer sem.Release(1)

				err := s.sendToRecipient(ctx, campaign, r)
				mu.Lock()
				if err != nil {
					failed++
				} else {
					sent++
				}
				mu.Unlock()
			}(recipient)
		}
		wg.Wait()
	}

	s.logger.WithFields(map[string]interface{}{
		"campaign_id": campaign.ID,
		"sent":        sent,
		"failed":      failed,
		"recipients":  len(recipients),
	}).Info("Batch send completed")

	return sent, failed, nil
}

func (s *batchSender) sendToRecipient(ctx context.Context, campaign *domain.Campaign, recipient domain.Recipient) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return NewCampaignErrorWithID(ErrCodeRateLimitExceeded, "rate limiter wait failed", campaign.ID, true, err)
	}

	subject, html := buildMessage(campaign, recipient)
	messageID, err := s.mailer.Send(ctx, recipient.Email, subject, html)
	if err != nil {
		if s.circuitBreaker != nil {
			s.circuitBreaker.RecordFailure()
		}
		s.logger.WithFields(map[string]interface{}{
			"campaign_id": campaign.ID,
			"email":       recipient.Email,
			"error":       err.Error(),
		}).Warn("Failed to send email to recipient")

		if recordErr := s.failures.Record(ctx, campaign.ID, recipient.Email, err.Error()); recordErr != nil {
			s.logger.WithField("error", recordErr.Error()).Error("Failed to record send failure")
		}
		return NewCampaignErrorWithID(ErrCodeSendFailed, "email send failed", campaign.ID, false, err)
	}

	if s.circuitBreaker != nil {
		s.circuitBreaker.RecordSuccess()
	}
	s.logger.WithFields(map[string]interface{}{
		"campaign_id": campaign.ID,
		"email":       recipient.Email,
		"message_id":  messageID,
	}).Debug("Email sent")
	return nil
}

// RateLimitRemaining reports the available tokens of the send rate limiter
func (s *batchSender) RateLimitRemaining() float64 {
	return s.limiter.Tokens()
}

// buildMessage renders the subject and body from the campaign's offer config.
// The {{name}} and {{email}} placeholders are substituted per recipient.
func buildMessage(campaign *domain.Campaign, recipient domain.Recipient) (string, string) {
	subject := campaign.OfferConfig["subject"]
	if subject == "" {
		subject = campaign.Name
	}
	html := campaign.OfferConfig["html"]
	if html == "" {
		html = "<p>" + subject + "</p>"
	}

	replacer := strings.NewReplacer(
		"{{name}}", recipient.Name,
		"{{email}}", recipient.Email,
	)
	return replacer.Replace(subject), replacer.Replace(html)
}
