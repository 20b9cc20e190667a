// Package main finalizes a profile picture after its S3 PUT by recording
// the object URL on the owner.
package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/app"
	"github.com/kylejryan/insurance-policy-portal/internal/config"
	"github.com/kylejryan/insurance-policy-portal/internal/logging"
	"github.com/kylejryan/insurance-policy-portal/internal/s3io"
)

// Avatars records uploaded pictures.
type Avatars interface {
	AttachProfilePicture(ctx context.Context, key string) (string, error)
}

// Objects reads object metadata.
type Objects interface {
	Head(ctx context.Context, key string) (map[string]string, error)
}

// App holds the handler dependencies.
type App struct {
	avatars Avatars
	objects Objects
	log     *zap.Logger
}

func main() {
	env := config.MustLoad()
	log := logging.Must(env.LogLevel, env.LogFormat, "portal-indexer")
	a, err := app.New(context.Background(), env, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	h := &App{avatars: a.Users, objects: a.Bucket, log: log}
	lambda.Start(h.handler)
}

// handler processes S3 event records. Failures are logged per record so one
// bad object does not block the batch.
func (a *App) handler(ctx context.Context, ev events.S3Event) (any, error) {
	for _, rec := range ev.Records {
		if err := a.processS3Record(ctx, rec); err != nil {
			a.log.Error("indexer: process error", zap.String("key", rec.S3.Object.Key), zap.Error(err))
		}
	}
	return nil, nil
}

func (a *App) processS3Record(ctx context.Context, record events.S3EventRecord) error {
	key, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		return fmt.Errorf("unescape key: %w", err)
	}
	keyUser, ok := s3io.ParseAvatarKey(key)
	if !ok {
		a.log.Debug("indexer: skipping non avatar object", zap.String("key", key))
		return nil
	}

	meta, err := a.objects.Head(ctx, key)
	if err != nil {
		return fmt.Errorf("head %s: %w", key, err)
	}
	// The presigned PUT pins user_id; a mismatch means the key was forged.
	if metaUser := strings.TrimSpace(lower(meta)["user_id"]); metaUser != "" && metaUser != keyUser {
		return fmt.Errorf("key %s belongs to %s but metadata says %s", key, keyUser, metaUser)
	}

	userID, err := a.avatars.AttachProfilePicture(ctx, key)
	if err != nil {
		return fmt.Errorf("attach %s: %w", key, err)
	}
	a.log.Info("profile picture recorded", zap.String("user_id", userID), zap.String("key", key))
	return nil
}

// lower normalizes user metadata keys to lowercase.
func lower(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
