package requeue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/jacentio/spool/batch"
)

// Resubmitter writes items again and returns those still unprocessed, grouped per chunk.
type Resubmitter[T any] interface {
	Resubmit(ctx context.Context, brand string, items []T) ([][]T, error)
}

// Consumer handles retry messages delivered by an SQS event source.
type Consumer[T any] struct {
	queue  *Queue[T]
	target Resubmitter[T]
	logger *slog.Logger
}

// NewConsumer creates a new Consumer re-enqueueing through queue.
func NewConsumer[T any](queue *Queue[T], target Resubmitter[T], logger *slog.Logger) *Consumer[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer[T]{
		queue:  queue,
		target: target,
		logger: logger,
	}
}

// Handle processes an SQS batch and reports the messages to redeliver.
// This function is designed to be used as an AWS Lambda handler with
// ReportBatchItemFailures enabled.
func (c *Consumer[T]) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, msg := range event.Records {
		if err := c.process(ctx, msg); err != nil {
			c.logger.Error("failed to process retry message",
				"messageID", msg.MessageId,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: msg.MessageId,
			})
		}
	}
	return resp, nil
}

// process re-submits one envelope. Items still unprocessed are re-enqueued
// with the next attempt number; a non-retryable failure abandons them.
func (c *Consumer[T]) process(ctx context.Context, msg events.SQSMessage) error {
	var env Envelope[T]
	if err := json.Unmarshal([]byte(msg.Body), &env); err != nil {
		c.logger.Error("dropping malformed retry message",
			"messageID", msg.MessageId,
			"error", err,
		)
		return nil
	}

	unprocessed, err := c.target.Resubmit(ctx, env.Brand, env.Items)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if batch.IsNonRetryable(err) {
		for _, group := range unprocessed {
			next := env
			next.ID = uuid.NewString()
			next.Items = group
			if aerr := c.queue.abandon(ctx, next, err.Error()); aerr != nil {
				return aerr
			}
		}
		return nil
	}
	if err != nil {
		c.logger.Warn("retry partially failed",
			"id", env.ID,
			"attempt", env.Attempt,
			"error", err,
		)
	}

	for _, group := range unprocessed {
		next := env
		next.ID = uuid.NewString()
		next.Attempt = env.Attempt + 1
		next.Items = group
		if err := c.queue.send(ctx, next); err != nil && !errors.Is(err, ErrAbandoned) {
			return err
		}
	}

	c.logger.Info("retry processed",
		"id", env.ID,
		"brand", env.Brand,
		"attempt", env.Attempt,
		"items", len(env.Items),
		"requeued", len(unprocessed),
	)
	return nil
}
