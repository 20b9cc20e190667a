package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/certificate"
	"github.com/kylejryan/insurance-policy-portal/internal/contracts"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
)

// HeaderStripeSignature carries the webhook signature.
const HeaderStripeSignature = "Stripe-Signature"

func (s *Server) subscribe(c *gin.Context) {
	var in contracts.SubscribeInput
	if !bind(c, &in) {
		return
	}
	if !self(c, in.UserID) {
		return
	}
	in.Testing = s.opts.AllowTesting && c.Query("testing") == "true"
	ct, err := s.svc.Contracts.Subscribe(c.Request.Context(), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, gin.H{"message": "Contract created", "contract": ct})
}

func (s *Server) finalizePayment(c *gin.Context) {
	var req FinalizeRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.svc.Contracts.FinalizePayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, res)
}

// paymentWebhook must see the body exactly as sent for the signature check.
func (s *Server) paymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		httpx.Error(c, http.StatusBadRequest, "could not read body")
		return
	}
	if err := s.svc.Contracts.HandleWebhook(c.Request.Context(), payload, c.GetHeader(HeaderStripeSignature)); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{"received": true})
}

func (s *Server) userContracts(c *gin.Context) {
	userID, ok := idParam(c, "userId", "user")
	if !ok || !self(c, userID) {
		return
	}
	list, err := s.svc.Contracts.ListForUser(c.Request.Context(), userID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) renewableContracts(c *gin.Context) {
	userID, ok := idParam(c, "userId", "user")
	if !ok || !self(c, userID) {
		return
	}
	list, err := s.svc.Contracts.ListRenewable(c.Request.Context(), userID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, list)
}

// owner returns the id renewal operations check ownership against. Staff
// act on any contract.
func owner(c *gin.Context) string {
	p := caller(c)
	if p.Staff() {
		return ""
	}
	return p.UserID
}

func (s *Server) prepareRenewal(c *gin.Context) {
	id, ok := idParam(c, "contractId", "contract")
	if !ok {
		return
	}
	rd, err := s.svc.Contracts.PrepareRenewal(c.Request.Context(), id, owner(c))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, rd)
}

func (s *Server) executeRenewal(c *gin.Context) {
	id, ok := idParam(c, "contractId", "contract")
	if !ok {
		return
	}
	var req RenewalRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.svc.Contracts.ExecuteRenewal(c.Request.Context(), id, owner(c), req.PaymentMethodID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, res)
}

func (s *Server) fixStatuses(c *gin.Context) {
	rep, err := s.svc.Contracts.FixStatuses(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, rep)
}

func (s *Server) downloadCertificate(c *gin.Context) {
	id, ok := idParam(c, "contractId", "contract")
	if !ok {
		return
	}
	p := caller(c)
	var buf bytes.Buffer
	ct, err := s.svc.Contracts.Certificate(c.Request.Context(), &buf, id, p.UserID, p.Staff())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", certificate.Filename(ct)))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
