// Package chat answers visitor and customer questions through an
// OpenAI-compatible chat completion endpoint.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
)

// Completion limits sent with every request.
const (
	MaxTokens   = 150
	Temperature = 0.7
)

const basePrompt = `Tu es l'assistant virtuel de YOMI Assurance, une plateforme d'assurance en ligne.

La plateforme permet de :
- créer un espace client sécurisé, consulter ses contrats et ses garanties ;
- souscrire un contrat en ligne avec paiement par carte et signature électronique ;
- déclarer un sinistre avec pièces justificatives et suivre son traitement ;
- renouveler un contrat arrivé à échéance et télécharger son attestation.

Consignes :
- Réponds uniquement en français, de façon brève et utile.
- Si la question porte sur une autre compagnie, indique que tu n'as pas d'information à son sujet et présente les services de YOMI Assurance.
`

const guestPrompt = `
L'utilisateur n'est pas connecté. Réponds aux questions d'avant inscription (souscription, sécurité des paiements, fonctionnalités) et invite-le à créer un compte.
`

const memberPrompt = `
L'utilisateur est connecté (nom : %s). Explique où trouver ses contrats et comment déclarer un sinistre depuis son espace client. Pour toute donnée précise, comme l'état d'un sinistre, renvoie vers l'espace client.
`

// SystemPrompt returns the instructions for a visitor or a signed-in user.
func SystemPrompt(authenticated bool, userName string) string {
	if !authenticated {
		return basePrompt + guestPrompt
	}
	if strings.TrimSpace(userName) == "" {
		userName = "Utilisateur"
	}
	return basePrompt + fmt.Sprintf(memberPrompt, userName)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the completion endpoint.
type Client struct {
	http  *resty.Client
	model string
	log   *zap.Logger
}

// NewClient builds a client for baseURL, e.g. https://api.groq.com/openai/v1.
func NewClient(baseURL, apiKey, model string, log *zap.Logger) *Client {
	h := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: h, model: model, log: log}
}

// Reply answers text for the given caller.
func (c *Client) Reply(ctx context.Context, text string, authenticated bool, userName string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("message is required")
	}
	req := completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: SystemPrompt(authenticated, userName)},
			{Role: "user", Content: text},
		},
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
	}
	var out completionResponse
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		c.log.Error("chat completion call failed", zap.Error(err))
		return "", apperr.Upstream("assistant unavailable", err)
	}
	if resp.IsError() {
		c.log.Error("chat completion rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", failure.Error.Message))
		return "", apperr.Upstream("assistant unavailable", fmt.Errorf("completion status %d", resp.StatusCode()))
	}
	if len(out.Choices) == 0 {
		return "", apperr.Upstream("assistant unavailable", errors.New("empty completion"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
