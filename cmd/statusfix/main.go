// Package main runs the daily contract status correction from an
// EventBridge schedule.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/app"
	"github.com/kylejryan/insurance-policy-portal/internal/config"
	"github.com/kylejryan/insurance-policy-portal/internal/contracts"
	"github.com/kylejryan/insurance-policy-portal/internal/logging"
)

func main() {
	env := config.MustLoad()
	log := logging.Must(env.LogLevel, env.LogFormat, "portal-statusfix")
	a, err := app.New(context.Background(), env, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	lambda.Start(func(ctx context.Context, ev events.CloudWatchEvent) (contracts.FixReport, error) {
		rep, err := a.Contracts.FixStatuses(ctx)
		if err != nil {
			log.Error("status correction failed", zap.String("event_id", ev.ID), zap.Error(err))
			return rep, err
		}
		log.Info("status correction done",
			zap.String("event_id", ev.ID),
			zap.Int("expired", rep.Expired),
			zap.Int("activated", rep.Activated),
			zap.Int("reactivated", rep.Reactivated))
		return rep, nil
	})
}
