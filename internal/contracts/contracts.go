// Package contracts implements the contract lifecycle: subscription with
// payment capture, payment confirmation, renewal and the status correction
// batch.
package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/certificate"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/payment"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

const (
	// Currency is the only currency contracts are billed in.
	Currency = "eur"
	// TestPaymentPrefix marks payment references made up in testing mode.
	TestPaymentPrefix = "test_"
	// RenewalWindow is how close to its end an active contract becomes
	// renewable.
	RenewalWindow = 30 * 24 * time.Hour
	// EventPaymentSucceeded is the webhook event that activates a contract.
	EventPaymentSucceeded = "payment_intent.succeeded"
)

// Store is the persistence the service needs.
type Store interface {
	store.Contracts
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Payments is the payment provider.
type Payments interface {
	CreateAndConfirm(ctx context.Context, amountMinor int64, currency, paymentMethod, idempotencyKey string) (payment.Intent, error)
	Retrieve(ctx context.Context, id string) (payment.Intent, error)
	VerifyWebhook(payload []byte, header string) (payment.Event, error)
}

// Renderer writes a contract certificate.
type Renderer interface {
	Render(w io.Writer, c *models.Contract, owner *models.User) error
}

// Service runs the contract lifecycle.
type Service struct {
	store       Store
	pay         Payments
	cert        Renderer
	log         *zap.Logger
	now         func() time.Time
	frontendURL string
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithFrontendURL sets the base URL used in links sent by email.
func WithFrontendURL(u string) Option { return func(s *Service) { s.frontendURL = u } }

// New returns a contract service. cert may be nil when certificates are not
// served.
func New(st Store, pay Payments, cert Renderer, log *zap.Logger, opts ...Option) *Service {
	s := &Service{store: st, pay: pay, cert: cert, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubscribeInput is a subscription request.
type SubscribeInput struct {
	UserID          string          `json:"userId"`
	PolicyType      string          `json:"policyType"`
	StartDate       string          `json:"startDate"`
	EndDate         string          `json:"endDate"`
	PremiumAmount   float64         `json:"premiumAmount"`
	CoverageDetails string          `json:"coverageDetails"`
	PolicyDetails   json.RawMessage `json:"policyDetails"`
	PolicyNumber    string          `json:"policyNumber,omitempty"`
	Signature       string          `json:"signature,omitempty"`
	PaymentMethodID string          `json:"paymentMethodId,omitempty"`

	// Testing skips payment capture. Set from the query string.
	Testing bool `json:"-"`
}

type subscription struct {
	policyType models.PolicyType
	start, end time.Time
	details    models.PolicyDetails
}

func (in SubscribeInput) check() (subscription, error) {
	var sub subscription
	err := validate.All(
		func() error { return validate.ID(in.UserID, "user") },
		func() error {
			p, ok := models.ParsePolicyType(in.PolicyType)
			if !ok {
				return apperr.Validation("invalid policyType")
			}
			sub.policyType = p
			return nil
		},
		func() (err error) { sub.start, err = validate.Date(in.StartDate, "startDate"); return err },
		func() (err error) { sub.end, err = validate.Date(in.EndDate, "endDate"); return err },
		func() error { return validate.Period(sub.start, sub.end) },
		func() error { return validate.Premium(in.PremiumAmount, "premiumAmount") },
		func() error { return validate.Required(in.CoverageDetails, "coverageDetails") },
		func() (err error) {
			sub.details, err = models.DecodePolicyDetails(sub.policyType, in.PolicyDetails)
			return err
		},
		func() error {
			if in.Signature == "" {
				return nil
			}
			if _, _, err := certificate.DecodeImage(in.Signature); err != nil {
				return apperr.Validation("invalid signature image")
			}
			return nil
		},
		func() error {
			if !in.Testing {
				return validate.Required(in.PaymentMethodID, "paymentMethodId")
			}
			return nil
		},
	)
	return sub, err
}

// Subscribe creates an active contract once its premium has been paid. No
// contract is written when the payment does not succeed.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (*models.Contract, error) {
	sub, err := in.check()
	if err != nil {
		return nil, err
	}
	owner, err := s.store.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	id := models.NewID()
	var intentID string
	if in.Testing {
		intentID = TestPaymentPrefix + uuid.NewString()
	} else {
		amount, ok := models.AmountMinor(in.PremiumAmount)
		if !ok {
			return nil, apperr.Validation("premiumAmount is out of range")
		}
		intent, err := s.pay.CreateAndConfirm(ctx, amount, Currency, in.PaymentMethodID, "subscribe-"+id)
		if err != nil {
			return nil, err
		}
		if !intent.Succeeded() {
			return nil, apperr.Payment("payment was not successful", errors.New("payment intent status "+intent.Status))
		}
		intentID = intent.ID
	}

	now := models.Stamp(s.now())
	c := &models.Contract{
		ID:              id,
		UserID:          owner.ID,
		PolicyType:      sub.policyType,
		PolicyNumber:    in.PolicyNumber,
		StartDate:       sub.start,
		EndDate:         sub.end,
		PremiumAmount:   in.PremiumAmount,
		Currency:        Currency,
		CoverageDetails: in.CoverageDetails,
		Details:         sub.details,
		PaymentIntentID: intentID,
		Status:          models.ContractActive,
		StatusUpdatedAt: &now,
		Signature:       in.Signature,
		Claims:          []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if c.PolicyNumber == "" {
		c.PolicyNumber = models.PolicyNumber(now, c.ID)
	}

	ev := models.NewOutboxEvent(models.MailContractConfirmation, now, map[string]string{
		"name":         owner.FullName(),
		"policyNumber": c.PolicyNumber,
		"policyType":   string(c.PolicyType),
		"startDate":    day(c.StartDate),
		"endDate":      day(c.EndDate),
		"premium":      money(c.PremiumAmount),
	})
	ev.UserID = owner.ID

	if err := s.store.CreateContract(ctx, c, ev); err != nil {
		s.log.Error("contract not saved after payment",
			zap.String("user_id", owner.ID),
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
		return nil, err
	}
	s.log.Info("contract subscribed",
		zap.String("contract_id", c.ID),
		zap.String("user_id", owner.ID),
		zap.String("policy_type", string(c.PolicyType)),
		zap.Bool("testing", in.Testing))
	return c, nil
}

// FinalizeResult reports a payment confirmation.
type FinalizeResult struct {
	PaymentIntentID string `json:"paymentIntentId"`
	Status          string `json:"status"`
	ContractID      string `json:"contractId,omitempty"`
	Activated       bool   `json:"activated"`
}

// FinalizePayment looks the intent up with the provider and activates its
// contract when it succeeded. A non-succeeded intent is reported, not
// treated as an error.
func (s *Service) FinalizePayment(ctx context.Context, paymentIntentID string) (FinalizeResult, error) {
	res := FinalizeResult{PaymentIntentID: paymentIntentID}
	if err := validate.Required(paymentIntentID, "paymentIntentId"); err != nil {
		return res, err
	}
	intent, err := s.pay.Retrieve(ctx, paymentIntentID)
	if err != nil {
		return res, err
	}
	res.Status = intent.Status
	if !intent.Succeeded() {
		return res, nil
	}
	c, err := s.store.ContractByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return res, err
	}
	res.ContractID = c.ID
	res.Activated, err = s.activate(ctx, c.ID)
	return res, err
}

// HandleWebhook verifies a provider event against its raw body and applies
// it. Only successful payments are acted on.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.pay.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}
	log := s.log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	if ev.Type != EventPaymentSucceeded {
		log.Debug("webhook event ignored")
		return nil
	}
	intent, err := ev.Intent()
	if err != nil {
		return err
	}
	c, err := s.store.ContractByPaymentIntent(ctx, intent.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("no contract for payment intent", zap.String("payment_intent_id", intent.ID))
		return nil
	}
	if err != nil {
		return err
	}
	activated, err := s.activate(ctx, c.ID)
	if err != nil {
		return err
	}
	log.Info("payment confirmed", zap.String("contract_id", c.ID), zap.Bool("activated", activated))
	return nil
}

func (s *Service) activate(ctx context.Context, id string) (bool, error) {
	return s.store.TransitionContract(ctx, store.Transition{
		ID:   id,
		From: []models.ContractStatus{models.ContractPendingPayment},
		To:   models.ContractActive,
		At:   models.Stamp(s.now()),
	})
}

// Get returns one contract.
func (s *Service) Get(ctx context.Context, id string) (*models.Contract, error) {
	if err := validate.ID(id, "contract"); err != nil {
		return nil, err
	}
	return s.store.GetContract(ctx, id)
}

// ListForUser returns every contract owned by userID.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Contract, error) {
	if err := validate.ID(userID, "user"); err != nil {
		return nil, err
	}
	return s.store.ContractsByUser(ctx, userID)
}

// ListRenewable returns the user's active contracts ending within the
// renewal window and the expired ones.
func (s *Service) ListRenewable(ctx context.Context, userID string) ([]models.Contract, error) {
	all, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	horizon := now.Add(RenewalWindow)
	out := []models.Contract{}
	for _, c := range all {
		switch {
		case c.Status == models.ContractExpired:
			out = append(out, c)
		case c.Status == models.ContractActive && !c.EndDate.After(horizon):
			out = append(out, c)
		}
	}
	return out, nil
}

// Certificate writes the PDF certificate of a contract. Customers may only
// download their own.
func (s *Service) Certificate(ctx context.Context, w io.Writer, contractID, callerID string, staff bool) (*models.Contract, error) {
	if s.cert == nil {
		return nil, errors.New("certificate rendering is not configured")
	}
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !staff && !c.OwnedBy(callerID) {
		return nil, apperr.Forbidden("contract belongs to another user")
	}
	owner, err := s.store.GetUser(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.cert.Render(w, c, owner); err != nil {
		return nil, apperr.Upstream("could not render certificate", err)
	}
	return c, nil
}

func day(t time.Time) string { return t.UTC().Format("02/01/2006") }

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
