package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

// AMQPQueue implements domain.BatchQueue on a durable AMQP queue with manual
// acknowledgements. The broker redelivers unacked jobs after a consumer dies,
// giving the same at-least-once contract as the Postgres backend.
//
// AMQP cannot selectively drop messages for one campaign, so DiscardCampaign
// is a no-op here; workers discard cancelled campaigns' jobs at admission time
// instead.
type AMQPQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    logger.Logger

	deliveries <-chan amqp.Delivery

	mu       sync.Mutex
	inFlight map[string]amqp.Delivery
}

// NewAMQPQueue connects to the broker and declares the durable queue
func NewAMQPQueue(url, queueName string, log logger.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	deliveries, err := channel.Consume(
		queueName,
		"",    // consumer tag
		false, // manual ack for at-least-once delivery
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to register AMQP consumer: %w", err)
	}

	return &AMQPQueue{
		conn:       conn,
		channel:    channel,
		queueName:  queueName,
		logger:     log,
		deliveries: deliveries,
		inFlight:   make(map[string]amqp.Delivery),
	}, nil
}

// Enqueue validates and publishes a job as a persistent message
func (q *AMQPQueue) Enqueue(ctx context.Context, job *domain.BatchJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	payload, err := job.MarshalPayload()
	if err != nil {
		return "", err
	}

	if err := q.channel.Publish(
		"",          // default exchange
		q.queueName, // routing key
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.ID,
			Body:         payload,
		},
	); err != nil {
		return "", fmt.Errorf("failed to publish batch job: %w", err)
	}
	return job.ID, nil
}

// Dequeue blocks until the broker delivers a job or the context is cancelled
func (q *AMQPQueue) Dequeue(ctx context.Context) (*domain.BatchJob, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case delivery, ok := <-q.deliveries:
			if !ok {
				return nil, fmt.Errorf("AMQP delivery channel closed")
			}

			job, err := domain.UnmarshalBatchJob(delivery.Body)
			if err != nil {
				// Poison message: ack it away, it will never decode
				q.logger.WithFields(map[string]interface{}{
					"message_id": delivery.MessageId,
					"error":      err.Error(),
				}).Error("Dropping undecodable AMQP job")
				_ = delivery.Ack(false)
				continue
			}

			if job.ID == "" {
				job.ID = delivery.MessageId
			}

			q.mu.Lock()
			q.inFlight[job.ID] = delivery
			q.mu.Unlock()

			return job, nil
		}
	}
}

// Ack acknowledges a delivered job with the broker
func (q *AMQPQueue) Ack(ctx context.Context, jobID string) error {
	q.mu.Lock()
	delivery, ok := q.inFlight[jobID]
	if ok {
		delete(q.inFlight, jobID)
	}
	q.mu.Unlock()

	if !ok {
		return &domain.NotFoundError{Entity: "batch job", ID: jobID}
	}
	if err := delivery.Ack(false); err != nil {
		return fmt.Errorf("failed to ack AMQP job: %w", err)
	}
	return nil
}

// DiscardCampaign is a no-op for AMQP; cancelled jobs are dropped by workers at
// admission time
func (q *AMQPQueue) DiscardCampaign(ctx context.Context, campaignID string) (int, error) {
	q.logger.WithField("campaign_id", campaignID).
		Debug("AMQP backend discards cancelled jobs at worker admission")
	return 0, nil
}

// Close shuts down the channel and connection
func (q *AMQPQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return fmt.Errorf("failed to close AMQP channel: %w", err)
	}
	return q.conn.Close()
}
