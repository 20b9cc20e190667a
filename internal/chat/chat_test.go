package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
)

func TestSystemPrompt(t *testing.T) {
	guest := SystemPrompt(false, "Alice")
	assert.Contains(t, guest, "n'est pas connecté")
	assert.NotContains(t, guest, "Alice")

	member := SystemPrompt(true, "Alice Martin")
	assert.Contains(t, member, "nom : Alice Martin")
	assert.Contains(t, SystemPrompt(true, " "), "nom : Utilisateur")
}

func TestReply(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Rendez-vous dans votre espace client. "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "key_test", "llama-test", zap.NewNop())
	answer, err := c.Reply(context.Background(), "Comment voir mes contrats ?", true, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Rendez-vous dans votre espace client.", answer)

	assert.Equal(t, "llama-test", got.Model)
	assert.Equal(t, MaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Alice")
	assert.Equal(t, "Comment voir mes contrats ?", got.Messages[1].Content)
}

func TestReplyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "bad", "m", zap.NewNop())

	_, err := c.Reply(context.Background(), "  ", false, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = c.Reply(context.Background(), "Bonjour", false, "")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Equal(t, http.StatusInternalServerError, apperr.Status(err))
}
