package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAvatars struct{ keys []string }

func (f *fakeAvatars) AttachProfilePicture(_ context.Context, key string) (string, error) {
	f.keys = append(f.keys, key)
	return "u1", nil
}

type fakeObjects map[string]map[string]string

func (f fakeObjects) Head(_ context.Context, key string) (map[string]string, error) {
	m, ok := f[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

func record(key string) events.S3EventRecord {
	var r events.S3EventRecord
	r.S3.Object.Key = key
	return r
}

func TestProcessS3Record(t *testing.T) {
	av := &fakeAvatars{}
	objs := fakeObjects{
		"user/u1/avatar/01ABC.png":  {"User_id": "u1"},
		"user/u1/avatar/01DEF.png":  {"user_id": "u2"},
		"user/u1/avatar/my pic.png": {},
	}
	a := &App{avatars: av, objects: objs, log: zap.NewNop()}
	ctx := context.Background()

	require.NoError(t, a.processS3Record(ctx, record("user/u1/avatar/01ABC.png")))
	require.NoError(t, a.processS3Record(ctx, record("user/u1/avatar/my+pic.png")))
	require.NoError(t, a.processS3Record(ctx, record("user/u1/claims/c1/0-a.pdf")))
	assert.Error(t, a.processS3Record(ctx, record("user/u1/avatar/01DEF.png")))
	assert.Error(t, a.processS3Record(ctx, record("user/u1/avatar/missing.png")))

	assert.Equal(t, []string{"user/u1/avatar/01ABC.png", "user/u1/avatar/my pic.png"}, av.keys)
}

func TestHandlerContinuesPastFailures(t *testing.T) {
	av := &fakeAvatars{}
	a := &App{avatars: av, objects: fakeObjects{"user/u1/avatar/ok.png": {}}, log: zap.NewNop()}

	_, err := a.handler(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		record("user/u1/avatar/missing.png"),
		record("user/u1/avatar/ok.png"),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"user/u1/avatar/ok.png"}, av.keys)
}
