// Package requeue moves unprocessed batch items through an SQS retry queue.
//
// Every message carries the number of attempts made so far. Each retry is
// delayed longer than the last, and once the attempt ceiling is reached the
// items are dropped, logged and announced on EventBridge as abandoned.
package requeue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"github.com/jacentio/spool/batch"
)

// DetailTypeAbandoned is the EventBridge detail type for abandoned items.
const DetailTypeAbandoned = "batch.items.abandoned"

// ErrAbandoned is returned when items reached the attempt ceiling and were dropped.
var ErrAbandoned = errors.New("spool: retry attempts exhausted")

// SQSAPI is the subset of *sqs.Client used by the Queue.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EventsAPI is the subset of *eventbridge.Client used by the Queue.
type EventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Envelope is the message body of one retry.
type Envelope[T any] struct {
	ID           string    `json:"id"`
	Attempt      int       `json:"attempt"`
	Brand        string    `json:"brand"`
	Items        []T       `json:"items"`
	FirstFailure time.Time `json:"first_failure"`
}

// Config holds configuration for the Queue.
type Config struct {
	// QueueURL is the retry queue.
	QueueURL string

	// EventBusName receives abandonment events.
	// Default: "default"
	EventBusName string

	// Source is the EventBridge source of abandonment events.
	// Default: "spool.catalog"
	Source string

	// Policy spaces and bounds the attempts.
	// Default: batch.DefaultRetryPolicy()
	Policy batch.RetryPolicy
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	if c.EventBusName == "" {
		c.EventBusName = "default"
	}
	if c.Source == "" {
		c.Source = "spool.catalog"
	}
	c.Policy = c.Policy.Normalized()
}

// Queue sends unprocessed items for a delayed retry.
type Queue[T any] struct {
	sqs    SQSAPI
	events EventsAPI
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewQueue creates a new Queue.
func NewQueue[T any](sqsClient SQSAPI, eventsClient EventsAPI, config Config, logger *slog.Logger) *Queue[T] {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue[T]{
		sqs:    sqsClient,
		events: eventsClient,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Policy returns the retry policy in effect.
func (q *Queue[T]) Policy() batch.RetryPolicy {
	return q.config.Policy
}

// Enqueue schedules items that failed attempt times. It returns ErrAbandoned
// when attempt has reached the ceiling.
func (q *Queue[T]) Enqueue(ctx context.Context, brand string, items []T, attempt int) error {
	return q.send(ctx, Envelope[T]{
		ID:           uuid.NewString(),
		Attempt:      attempt,
		Brand:        brand,
		Items:        items,
		FirstFailure: q.now().UTC(),
	})
}

// send delivers env with the delay for its attempt, or abandons it.
func (q *Queue[T]) send(ctx context.Context, env Envelope[T]) error {
	if q.config.Policy.Exhausted(env.Attempt) {
		if err := q.abandon(ctx, env, "attempts exhausted"); err != nil {
			return err
		}
		return ErrAbandoned
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	delay := q.config.Policy.Delay(env.Attempt)

	_, err = q.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.config.QueueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return fmt.Errorf("send retry %s: %w", env.ID, err)
	}

	q.logger.Info("items queued for retry",
		"id", env.ID,
		"brand", env.Brand,
		"attempt", env.Attempt,
		"items", len(env.Items),
		"delay", delay,
	)
	return nil
}

// abandon logs env as permanently failed and publishes an abandonment event.
func (q *Queue[T]) abandon(ctx context.Context, env Envelope[T], reason string) error {
	q.logger.Error("batch items abandoned",
		"id", env.ID,
		"brand", env.Brand,
		"attempt", env.Attempt,
		"firstFailure", env.FirstFailure,
		"reason", reason,
		"items", env.Items,
	)

	detail, err := json.Marshal(struct {
		Envelope[T]
		Reason string `json:"reason"`
	}{env, reason})
	if err != nil {
		return fmt.Errorf("marshal abandonment: %w", err)
	}

	out, err := q.events.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(q.config.EventBusName),
			Source:       aws.String(q.config.Source),
			DetailType:   aws.String(DetailTypeAbandoned),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(q.now()),
		}},
	})
	if err != nil {
		return fmt.Errorf("put abandonment event: %w", err)
	}
	if out.FailedEntryCount > 0 {
		return fmt.Errorf("put abandonment event: %d entries failed", out.FailedEntryCount)
	}
	return nil
}
