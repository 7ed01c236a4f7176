// Command requeue consumes the retry queue of unprocessed product imports.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/spool/internal/app"
	"github.com/jacentio/spool/requeue"
)

func main() {
	a, err := app.Load(context.Background())
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	if a.Queue == nil {
		a.Logger.Error("RETRY_QUEUE_URL is required")
		os.Exit(1)
	}

	c := requeue.NewConsumer(a.Queue, a.Catalog, a.Logger)
	lambda.Start(c.Handle)
}
