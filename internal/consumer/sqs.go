// Package consumer drives the batch handler from an SQS queue. Delivery is
// at-least-once: only successfully handled messages are deleted, so the
// queue redelivers exactly the failures.
package consumer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/alertfunnel/alertfunnel/internal/processor"
	"github.com/alertfunnel/alertfunnel/internal/utils"
)

const (
	defaultBatchSize    = 10
	defaultWaitSeconds  = 20
	receiveErrorBackoff = 5 * time.Second
)

// sqsAPI is the slice of the SQS client the consumer uses
type sqsAPI interface {
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

// BatchHandler is the slice of the processor the consumer drives
type BatchHandler interface {
	Handle(ctx context.Context, msgs []processor.Message) []string
}

// Consumer long-polls one queue and hands batches to the handler.
type Consumer struct {
	client    sqsAPI
	handler   BatchHandler
	queueURL  string
	queueARN  string
	batchSize int32
	waitTime  int32
}

// New creates a consumer for queueURL. The queue ARN is resolved on the
// first Run call.
func New(client sqsAPI, queueURL string, handler BatchHandler) *Consumer {
	return &Consumer{
		client:    client,
		handler:   handler,
		queueURL:  queueURL,
		batchSize: defaultBatchSize,
		waitTime:  defaultWaitSeconds,
	}
}

// WithWaitTime overrides the long-poll wait. SQS caps the wait at 20
// seconds; larger values are clamped.
func (c *Consumer) WithWaitTime(seconds int32) *Consumer {
	if seconds > defaultWaitSeconds {
		seconds = defaultWaitSeconds
	}
	if seconds >= 0 {
		c.waitTime = seconds
	}
	return c
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.resolveQueueARN(ctx); err != nil {
		return err
	}
	log.Info().Str("queue", c.queueURL).Msg("consuming alert queue")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: c.batchSize,
			WaitTimeSeconds:     c.waitTime,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("receive from queue failed")
			time.Sleep(receiveErrorBackoff)
			continue
		}
		if len(out.Messages) == 0 {
			continue
		}

		c.handleBatch(ctx, out.Messages)
	}
}

func (c *Consumer) handleBatch(ctx context.Context, messages []types.Message) {
	started := time.Now()

	batch := make([]processor.Message, 0, len(messages))
	for _, m := range messages {
		receiveCount, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		batch = append(batch, processor.Message{
			ID:           aws.ToString(m.MessageId),
			Body:         aws.ToString(m.Body),
			ReceiveCount: receiveCount,
			SourceARN:    c.queueARN,
		})
	}

	failed := c.handler.Handle(ctx, batch)
	failedSet := make(map[string]bool, len(failed))
	for _, id := range failed {
		failedSet[id] = true
	}

	entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(messages))
	for i, m := range messages {
		if failedSet[aws.ToString(m.MessageId)] {
			continue
		}
		entries = append(entries, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: m.ReceiptHandle,
		})
	}
	if len(entries) > 0 {
		if _, err := c.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(c.queueURL),
			Entries:  entries,
		}); err != nil {
			// Deletion failure means redelivery of already-handled
			// messages; the fingerprint makes that harmless.
			log.Warn().Err(err).Msg("failed to delete handled messages")
		}
	}

	log.Info().
		Int("received", len(messages)).
		Int("failed", len(failed)).
		Str("duration", utils.FormatDuration(time.Since(started))).
		Msg("batch handled")
}

func (c *Consumer) resolveQueueARN(ctx context.Context) error {
	if c.queueARN != "" {
		return nil
	}
	out, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(c.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return fmt.Errorf("failed to resolve queue ARN: %w", err)
	}
	c.queueARN = out.Attributes[string(types.QueueAttributeNameQueueArn)]
	return nil
}
