package contracts

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

// FixReport counts the contracts changed by one FixStatuses run.
type FixReport struct {
	Expired     int `json:"expired"`
	Activated   int `json:"activated"`
	Reactivated int `json:"reactivated"`
}

// Changed reports whether the run modified anything.
func (r FixReport) Changed() bool { return r.Expired+r.Activated+r.Reactivated > 0 }

// FixStatuses brings contract statuses in line with their end dates:
//
//  1. active or pending_payment contracts that ended are expired, and their
//     owner is sent a notice;
//  2. pending_payment contracts still running with a payment reference are
//     activated;
//  3. expired contracts still running are set back to active.
//
// Archived and cancelled contracts are never touched. A second run in a row
// changes nothing.
func (s *Service) FixStatuses(ctx context.Context) (FixReport, error) {
	var rep FixReport
	now := models.Stamp(s.now())

	for _, from := range []models.ContractStatus{models.ContractActive, models.ContractPendingPayment} {
		ended, err := s.store.ContractsByStatus(ctx, from, store.EndRange{Before: now})
		if err != nil {
			return rep, err
		}
		for _, c := range ended {
			ok, err := s.store.TransitionContract(ctx, store.Transition{
				ID:     c.ID,
				From:   []models.ContractStatus{from},
				To:     models.ContractExpired,
				At:     now,
				Events: []models.OutboxEvent{s.expiryNotice(&c, now)},
			})
			if err != nil {
				s.log.Error("expire contract", zap.String("contract_id", c.ID), zap.Error(err))
				continue
			}
			if ok {
				rep.Expired++
			}
		}
	}

	pending, err := s.store.ContractsByStatus(ctx, models.ContractPendingPayment, store.EndRange{From: now})
	if err != nil {
		return rep, err
	}
	for _, c := range pending {
		if c.PaymentIntentID == "" {
			continue
		}
		ok, err := s.transition(ctx, c.ID, models.ContractPendingPayment, models.ContractActive)
		if err != nil {
			return rep, err
		}
		if ok {
			rep.Activated++
		}
	}

	expired, err := s.store.ContractsByStatus(ctx, models.ContractExpired, store.EndRange{From: now})
	if err != nil {
		return rep, err
	}
	for _, c := range expired {
		ok, err := s.transition(ctx, c.ID, models.ContractExpired, models.ContractActive)
		if err != nil {
			return rep, err
		}
		if ok {
			rep.Reactivated++
		}
	}

	if rep.Changed() {
		s.log.Info("contract statuses fixed",
			zap.Int("expired", rep.Expired),
			zap.Int("activated", rep.Activated),
			zap.Int("reactivated", rep.Reactivated))
	}
	return rep, nil
}

func (s *Service) transition(ctx context.Context, id string, from, to models.ContractStatus) (bool, error) {
	return s.store.TransitionContract(ctx, store.Transition{
		ID:   id,
		From: []models.ContractStatus{from},
		To:   to,
		At:   models.Stamp(s.now()),
	})
}

func (s *Service) expiryNotice(c *models.Contract, now time.Time) models.OutboxEvent {
	data := map[string]string{
		"policyNumber": c.PolicyNumber,
		"endDate":      day(c.EndDate),
	}
	if s.frontendURL != "" {
		data["renewUrl"] = strings.TrimRight(s.frontendURL, "/") + "/contracts"
	}
	ev := models.NewOutboxEvent(models.MailContractExpired, now, data)
	ev.UserID = c.UserID
	return ev
}
