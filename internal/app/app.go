package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jacentio/spool/batch"
	"github.com/jacentio/spool/catalog"
	"github.com/jacentio/spool/cursor"
	"github.com/jacentio/spool/requeue"
	"github.com/jacentio/spool/store"
)

// App holds the wired components shared by the entrypoints.
type App struct {
	Config  Config
	Logger  *slog.Logger
	Store   *store.Store
	Queue   *requeue.Queue[catalog.Product]
	Catalog *catalog.Service
}

// Clients are the AWS clients the App is built on.
type Clients struct {
	DynamoDB    store.Client
	SQS         requeue.SQSAPI
	EventBridge requeue.EventsAPI
}

// Load reads the environment and builds the App on default AWS clients.
func Load(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return New(cfg, Clients{
		DynamoDB:    dynamodb.NewFromConfig(awsCfg),
		SQS:         sqs.NewFromConfig(awsCfg),
		EventBridge: eventbridge.NewFromConfig(awsCfg),
	}, NewLogger(cfg))
}

// New builds the App from cfg and clients. Without a retry queue URL,
// unprocessed imports are reported as failed instead of queued.
func New(cfg Config, clients Clients, logger *slog.Logger) (*App, error) {
	codec, err := cursor.NewCodec([]byte(cfg.CursorSecret), cursor.WithTTL(cfg.CursorTTL))
	if err != nil {
		return nil, fmt.Errorf("cursor codec: %w", err)
	}

	s := store.New(clients.DynamoDB, store.Config{
		TableName:     cfg.TableName,
		DatatypeIndex: cfg.DatatypeIndex,
	})

	policy := batch.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  s,
	}

	var queue catalog.RetryQueue
	if cfg.QueueURL != "" {
		a.Queue = requeue.NewQueue[catalog.Product](clients.SQS, clients.EventBridge, requeue.Config{
			QueueURL:     cfg.QueueURL,
			EventBusName: cfg.EventBusName,
			Source:       cfg.EventSource,
			Policy:       policy,
		}, logger)
		queue = a.Queue
	}

	catalogCfg := catalog.DefaultConfig()
	catalogCfg.DatatypeIndex = s.DatatypeIndex()
	catalogCfg.PageLimit = int32(cfg.PageLimit)
	catalogCfg.Assoc.Concurrency = cfg.Concurrency

	a.Catalog = catalog.NewService(s, codec, queue, catalogCfg, logger)
	return a, nil
}
