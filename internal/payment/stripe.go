// Package payment is a small Stripe REST client covering payment intents and
// webhook signature checks.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
)

// DefaultAPIURL is Stripe's API base.
const DefaultAPIURL = "https://api.stripe.com"

// StatusSucceeded is the only intent status that captures funds.
const StatusSucceeded = "succeeded"

// Intent is the part of a Stripe PaymentIntent the portal reads.
type Intent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Succeeded reports whether the intent captured funds.
func (i Intent) Succeeded() bool { return i.Status == StatusSucceeded }

type apiError struct {
	Error struct {
		Type          string  `json:"type"`
		Code          string  `json:"code"`
		Message       string  `json:"message"`
		PaymentIntent *Intent `json:"payment_intent"`
	} `json:"error"`
}

// Client talks to the Stripe API.
type Client struct {
	http          *resty.Client
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
	log           *zap.Logger
}

// NewClient builds a client authenticating with secretKey.
func NewClient(baseURL, secretKey, webhookSecret string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	h := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetAuthToken(secretKey).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		})
	return &Client{
		http:          h,
		webhookSecret: webhookSecret,
		tolerance:     5 * time.Minute,
		now:           time.Now,
		log:           log,
	}
}

// CreateAndConfirm creates a payment intent for amountMinor and confirms it
// immediately with paymentMethod. A declined card is returned as an intent
// whose status is not succeeded. idempotencyKey names the charge attempt so
// that retries of the same attempt never charge twice; it is sent on every
// retry of the request and may be empty.
func (c *Client) CreateAndConfirm(ctx context.Context, amountMinor int64, currency, paymentMethod, idempotencyKey string) (Intent, error) {
	var intent Intent
	var failure apiError
	req := c.http.R().SetContext(ctx)
	if idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", idempotencyKey)
	}
	resp, err := req.
		SetFormData(map[string]string{
			"amount":                                     strconv.FormatInt(amountMinor, 10),
			"currency":                                   currency,
			"payment_method":                             paymentMethod,
			"confirm":                                    "true",
			"automatic_payment_methods[enabled]":         "true",
			"automatic_payment_methods[allow_redirects]": "never",
		}).
		SetResult(&intent).
		SetError(&failure).
		Post("/v1/payment_intents")
	if err != nil {
		return Intent{}, apperr.Upstream("payment provider unavailable", err)
	}
	if resp.IsError() {
		c.log.Warn("payment intent rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("code", failure.Error.Code),
			zap.String("message", failure.Error.Message))
		if resp.StatusCode() == http.StatusPaymentRequired && failure.Error.PaymentIntent != nil {
			return *failure.Error.PaymentIntent, nil
		}
		if resp.StatusCode() < http.StatusInternalServerError {
			return Intent{}, apperr.Payment("payment was not accepted", fmt.Errorf("stripe: %s", failure.Error.Message))
		}
		return Intent{}, apperr.Upstream("payment provider error", fmt.Errorf("stripe status %d", resp.StatusCode()))
	}
	return intent, nil
}

// Retrieve fetches the intent with id.
func (c *Client) Retrieve(ctx context.Context, id string) (Intent, error) {
	var intent Intent
	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&intent).
		SetError(&failure).
		Get("/v1/payment_intents/{id}")
	if err != nil {
		return Intent{}, apperr.Upstream("payment provider unavailable", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return Intent{}, apperr.NotFound("payment intent not found")
	case resp.IsError():
		return Intent{}, apperr.Upstream("payment provider error", fmt.Errorf("stripe status %d: %s", resp.StatusCode(), failure.Error.Message))
	}
	return intent, nil
}

// Event is a verified webhook event.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Intent decodes the event object as a payment intent.
func (e Event) Intent() (Intent, error) {
	var i Intent
	if err := json.Unmarshal(e.Data.Object, &i); err != nil {
		return Intent{}, apperr.Validation("webhook object is not a payment intent")
	}
	return i, nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw payload
// and decodes the event.
func (c *Client) VerifyWebhook(payload []byte, header string) (Event, error) {
	if c.webhookSecret == "" {
		return Event{}, apperr.Validation("webhook signature verification failed: " + errNoSecret.Error())
	}
	if err := verifySignature(payload, header, c.webhookSecret, c.now(), c.tolerance); err != nil {
		return Event{}, apperr.Validation("webhook signature verification failed: " + err.Error())
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, apperr.Validation("malformed webhook payload")
	}
	return ev, nil
}
