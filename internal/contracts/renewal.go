package contracts

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

// renewable lists the statuses a renewal can be offered from.
var renewable = []models.ContractStatus{models.ContractActive, models.ContractExpired}

func (s *Service) owned(ctx context.Context, contractID, callerID string) (*models.Contract, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if callerID != "" && !c.OwnedBy(callerID) {
		return nil, apperr.Forbidden("contract belongs to another user")
	}
	return c, nil
}

// PrepareRenewal stages a one year renewal starting at the current end date
// with the uplifted premium. Calling it again replaces the offer.
func (s *Service) PrepareRenewal(ctx context.Context, contractID, callerID string) (*models.RenewalData, error) {
	c, err := s.owned(ctx, contractID, callerID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(renewable, c.Status) {
		return nil, apperr.Validation("only active or expired contracts can be renewed")
	}
	version := 1
	if c.RenewalData != nil {
		version = c.RenewalData.Version + 1
	}
	offer := models.RenewalData{
		RenewalOffered: true,
		RenewalPremium: models.RenewalPremium(c.PremiumAmount),
		NewStartDate:   c.EndDate,
		NewEndDate:     c.EndDate.AddDate(1, 0, 0),
		OfferedAt:      models.Stamp(s.now()),
		Version:        version,
	}
	if err := s.store.SaveRenewalOffer(ctx, c.ID, offer, renewable); err != nil {
		return nil, err
	}
	s.log.Info("renewal offered",
		zap.String("contract_id", c.ID),
		zap.Float64("premium", offer.RenewalPremium),
		zap.Int("version", version))
	return &offer, nil
}

// RenewalResult is the outcome of an executed renewal. The applied start
// differs from the proposed one when the original had already expired.
type RenewalResult struct {
	Contract          *models.Contract `json:"contract"`
	ArchivedID        string           `json:"archivedContractId"`
	ProposedStartDate time.Time        `json:"proposedStartDate"`
	AppliedStartDate  time.Time        `json:"appliedStartDate"`
	StartDateAdjusted bool             `json:"startDateAdjusted"`
	PaymentStatus     string           `json:"paymentStatus"`
}

// ExecuteRenewal charges the staged offer and replaces the contract with a
// new one. The offer is claimed before any payment so that only one of two
// concurrent calls proceeds; the other gets a conflict. On failure the offer
// is restored and the original is left untouched.
func (s *Service) ExecuteRenewal(ctx context.Context, contractID, callerID, paymentMethod string) (*RenewalResult, error) {
	if err := validate.Required(paymentMethod, "paymentMethodId"); err != nil {
		return nil, err
	}
	c, err := s.owned(ctx, contractID, callerID)
	if err != nil {
		return nil, err
	}
	rd := c.RenewalData
	switch {
	case c.Status == models.ContractArchived:
		return nil, apperr.Conflict("contract has already been renewed")
	case rd == nil:
		return nil, apperr.Validation("no renewal offer for this contract, prepare the renewal first")
	case !rd.RenewalOffered:
		return nil, apperr.Conflict("a renewal of this contract is already in progress")
	}
	if err := s.store.ClaimRenewalOffer(ctx, c.ID, rd.Version); err != nil {
		return nil, err
	}
	log := s.log.With(zap.String("contract_id", c.ID), zap.Int("version", rd.Version))

	res, err := s.renew(ctx, c, *rd, paymentMethod)
	if err != nil {
		if rerr := s.store.ReleaseRenewalOffer(ctx, c.ID, rd.Version); rerr != nil {
			log.Warn("renewal offer not restored", zap.Error(rerr))
		}
		log.Warn("renewal failed", zap.Error(err))
		return nil, err
	}
	log.Info("contract renewed",
		zap.String("new_contract_id", res.Contract.ID),
		zap.String("status", string(res.Contract.Status)),
		zap.Bool("start_adjusted", res.StartDateAdjusted))
	return res, nil
}

func (s *Service) renew(ctx context.Context, c *models.Contract, rd models.RenewalData, paymentMethod string) (*RenewalResult, error) {
	now := models.Stamp(s.now())
	start := c.EndDate
	if c.Status == models.ContractExpired && c.EndDate.Before(now) {
		start = now
	}

	amount, ok := models.AmountMinor(rd.RenewalPremium)
	if !ok {
		return nil, apperr.Validation("renewal premium is out of range")
	}
	// The claimed offer version is unique per attempt, so a retried request
	// reuses the key and a later attempt after a release gets a new one.
	key := fmt.Sprintf("renewal-%s-v%d", c.ID, rd.Version+1)
	intent, err := s.pay.CreateAndConfirm(ctx, amount, Currency, paymentMethod, key)
	if err != nil {
		return nil, err
	}
	status := models.ContractPendingPayment
	if intent.Succeeded() {
		status = models.ContractActive
	}

	next := &models.Contract{
		ID:              models.NewID(),
		UserID:          c.UserID,
		PolicyType:      c.PolicyType,
		StartDate:       start,
		EndDate:         start.AddDate(1, 0, 0),
		PremiumAmount:   rd.RenewalPremium,
		Currency:        Currency,
		CoverageDetails: c.CoverageDetails,
		Details:         c.Details,
		PaymentIntentID: intent.ID,
		Status:          status,
		StatusUpdatedAt: &now,
		Signature:       c.Signature,
		Claims:          []string{},
		RenewedFrom:     c.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	next.PolicyNumber = models.PolicyNumber(now, next.ID)

	adjusted := !start.Equal(rd.NewStartDate)
	ev := models.NewOutboxEvent(models.MailRenewalConfirmation, now, map[string]string{
		"policyNumber":      c.PolicyNumber,
		"newPolicyNumber":   next.PolicyNumber,
		"startDate":         day(next.StartDate),
		"endDate":           day(next.EndDate),
		"proposedStartDate": day(rd.NewStartDate),
		"startDateAdjusted": boolString(adjusted),
		"premium":           money(next.PremiumAmount),
		"status":            string(next.Status),
	})
	ev.UserID = c.UserID

	err = s.store.CommitRenewal(ctx, next, store.Archive{
		ID:           c.ID,
		ReplacedBy:   next.ID,
		Reason:       models.ArchiveReasonRenewed,
		At:           now,
		OfferVersion: rd.Version + 1,
	}, ev)
	if err != nil {
		return nil, err
	}
	return &RenewalResult{
		Contract:          next,
		ArchivedID:        c.ID,
		ProposedStartDate: rd.NewStartDate,
		AppliedStartDate:  start,
		StartDateAdjusted: adjusted,
		PaymentStatus:     intent.Status,
	}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
