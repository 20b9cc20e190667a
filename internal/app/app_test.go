package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/config"
)

func TestJWTSecret(t *testing.T) {
	log := zap.NewNop()

	got, err := jwtSecret(config.Env{Store: config.StoreDynamo, JWTSecret: "k"}, log)
	require.NoError(t, err)
	assert.Equal(t, "k", got)

	_, err = jwtSecret(config.Env{Store: config.StoreDynamo}, log)
	assert.Error(t, err)

	_, err = jwtSecret(config.Env{Store: config.StoreMemory, AppEnv: "production"}, log)
	assert.Error(t, err)

	a, err := jwtSecret(config.Env{Store: config.StoreMemory, AppEnv: "development"}, log)
	require.NoError(t, err)
	b, err := jwtSecret(config.Env{Store: config.StoreMemory, AppEnv: "development"}, log)
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
