// Command stream runs association cascades from the catalog table's stream.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/spool/catalog"
	"github.com/jacentio/spool/internal/app"
	"github.com/jacentio/spool/stream"
)

func main() {
	a, err := app.Load(context.Background())
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	h := stream.NewHandler(a.Catalog.Maintainer(), catalog.NewRegistry(), a.Logger)
	lambda.Start(h.HandleCascade)
}
