// Package queue provides the SQS producer for batch audit events.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/satyaLM/override-api/internal/config"
	"github.com/satyaLM/override-api/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// maxMessageBytes is the SQS message size limit.
const maxMessageBytes = 256 * 1024

// BatchEventPublisher sends one BatchCompletedEvent per finished override
// batch to the audit queue. Consumers use the category and batch_id message
// attributes to route without parsing the body.
type BatchEventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewBatchEventPublisher creates a publisher for the configured audit queue.
// It returns nil when no queue is configured; callers treat a nil publisher
// as disabled.
func NewBatchEventPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *BatchEventPublisher {
	if awsCfg.AuditQueueURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchEventPublisher{
		client:   client,
		queueURL: awsCfg.AuditQueueURL,
		logger:   logger,
	}
}

// PublishBatchCompleted serializes the event and sends it to the audit queue.
// Oversized events are sent without their id lists; the counts remain.
func (p *BatchEventPublisher) PublishBatchCompleted(ctx context.Context, evt types.BatchCompletedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal BatchCompletedEvent: %w", err)
	}
	if len(body) > maxMessageBytes {
		p.logger.WarnContext(ctx, "audit event too large, dropping id lists",
			"batch_id", evt.BatchID,
			"size_bytes", len(body),
		)
		evt.ProcessedIDs, evt.SkippedIDs, evt.FailedIDs = nil, nil, nil
		if body, err = json.Marshal(evt); err != nil {
			return fmt.Errorf("queue: failed to marshal BatchCompletedEvent: %w", err)
		}
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"category": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.Category)),
			},
			"batch_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(evt.BatchID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send BatchCompletedEvent to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "batch audit event sent",
		"queue_url", p.queueURL,
		"batch_id", evt.BatchID,
		"category", string(evt.Category),
		"processed_count", evt.ProcessedCount,
	)
	return nil
}
