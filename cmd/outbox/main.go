// Package main delivers outbox emails from the table's DynamoDB stream.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/app"
	"github.com/kylejryan/insurance-policy-portal/internal/config"
	"github.com/kylejryan/insurance-policy-portal/internal/logging"
)

func main() {
	env := config.MustLoad()
	log := logging.Must(env.LogLevel, env.LogFormat, "portal-outbox")
	a, err := app.New(context.Background(), env, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	lambda.Start(func(ctx context.Context, ev events.DynamoDBEvent) error {
		// A returned error makes Lambda retry the whole batch; delivered
		// events are skipped on retry since they are no longer pending.
		return a.Outbox.HandleStream(ctx, ev)
	})
}
