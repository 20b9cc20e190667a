package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
)

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1_735_776_000, 0)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded"}}}`)
	header := SignatureHeader(payload, "whsec_test", now)

	assert.NoError(t, verifySignature(payload, header, "whsec_test", now, 5*time.Minute))
	assert.ErrorIs(t, verifySignature(payload, header, "whsec_other", now, 5*time.Minute), errMismatch)
	assert.ErrorIs(t, verifySignature([]byte(`{}`), header, "whsec_test", now, 5*time.Minute), errMismatch)
	assert.ErrorIs(t, verifySignature(payload, header, "whsec_test", now.Add(10*time.Minute), 5*time.Minute), errTooOld)
	assert.ErrorIs(t, verifySignature(payload, "garbage", "whsec_test", now, 5*time.Minute), errBadHeader)
	assert.ErrorIs(t, verifySignature(payload, "t=1", "whsec_test", now, 0), errNoSignature)
}

func TestVerifyWebhookDecodesIntent(t *testing.T) {
	c := NewClient("", "sk_test", "whsec_test", zap.NewNop())
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded","amount":100000}}}`)

	ev, err := c.VerifyWebhook(payload, SignatureHeader(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", ev.Type)
	intent, err := ev.Intent()
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.True(t, intent.Succeeded())

	_, err = c.VerifyWebhook(payload, "t=1,v1=00")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateAndConfirm(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "subscribe-"+form["payment_method"], r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		if form["payment_method"] == "pm_card_chargeDeclined" {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined.","payment_intent":{"id":"pi_2","status":"requires_payment_method"}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"pi_1","status":"succeeded","amount":110000,"currency":"eur"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", "", zap.NewNop())
	intent, err := c.CreateAndConfirm(context.Background(), 110000, "eur", "pm_card_visa", "subscribe-pm_card_visa")
	require.NoError(t, err)
	assert.True(t, intent.Succeeded())
	assert.Equal(t, "110000", form["amount"])
	assert.Equal(t, "true", form["confirm"])
	assert.Equal(t, "never", form["automatic_payment_methods[allow_redirects]"])

	intent, err = c.CreateAndConfirm(context.Background(), 100, "eur", "pm_card_chargeDeclined", "subscribe-pm_card_chargeDeclined")
	require.NoError(t, err)
	assert.False(t, intent.Succeeded())
	assert.Equal(t, "pi_2", intent.ID)
}

func TestCreateAndConfirmRetriesWithSameKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "4200", r.PostForm.Get("amount"))
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		if len(keys) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream hiccup"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"pi_9","status":"succeeded","amount":4200,"currency":"eur"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", "", zap.NewNop())
	c.http.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)

	intent, err := c.CreateAndConfirm(context.Background(), 4200, "eur", "pm_card_visa", "renewal-c1-v3")
	require.NoError(t, err)
	assert.Equal(t, "pi_9", intent.ID)
	assert.Equal(t, []string{"renewal-c1-v3", "renewal-c1-v3"}, keys)
}

func TestCreateAndConfirmDeclineIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid currency"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "sk_test", "", zap.NewNop()).
		CreateAndConfirm(context.Background(), 100, "xxx", "pm_card_visa", "k")
	assert.ErrorIs(t, err, apperr.ErrPayment)
	assert.Equal(t, 1, calls)
}

func TestVerifyWebhookWithoutSecret(t *testing.T) {
	c := NewClient("", "sk_test", "", zap.NewNop())
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded"}}}`)

	// Signed with the empty key, which an unconfigured client must not trust.
	_, err := c.VerifyWebhook(payload, SignatureHeader(payload, "", time.Now()))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRetrieveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_missing", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"No such payment_intent"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "sk_test", "", zap.NewNop()).Retrieve(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
