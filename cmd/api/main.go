// Command api serves the catalog HTTP API behind API Gateway.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"

	"github.com/jacentio/spool/api"
	"github.com/jacentio/spool/internal/app"
)

var chiLambda *chiadapter.ChiLambdaV2

func init() {
	a, err := app.Load(context.Background())
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	chiLambda = chiadapter.NewV2(api.NewRouter(a.Catalog, a.Logger).Setup())
}

// Handler is the Lambda function handler.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return chiLambda.ProxyWithContextV2(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
