package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/authz"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

// FinalizeRequest confirms a payment made on the client.
type FinalizeRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

// RenewalRequest pays for a staged renewal.
type RenewalRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

// LoginRequest opens a session.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordRequest asks an admin to approve a reset.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest sets a new password with an approved token.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// ChangePasswordRequest replaces the caller's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ProfilePicRequest asks for a presigned profile picture upload.
type ProfilePicRequest struct {
	ContentType string `json:"content_type"`
}

// ClaimStatusRequest moves a claim through review.
type ClaimStatusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// CommentRequest adds a supervisor comment to a claim.
type CommentRequest struct {
	Text string `json:"text"`
}

// ChatRequest is one question for the assistant.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the assistant's answer.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// MessageResponse acknowledges an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// bind decodes the JSON body into v and writes a 400 on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		httpx.Fail(c, apperr.Validation("invalid request body"))
		return false
	}
	return true
}

// idParam reads a path id and rejects malformed ones before any lookup.
func idParam(c *gin.Context, name, what string) (string, bool) {
	id := c.Param(name)
	if err := validate.ID(id, what); err != nil {
		httpx.Fail(c, err)
		return "", false
	}
	return id, true
}

// caller returns the authenticated principal. Routes using it are mounted
// behind authz.Middleware.
func caller(c *gin.Context) authz.Principal {
	p, _ := authz.Current(c)
	return p
}

// self rejects callers acting on another account unless they are staff.
func self(c *gin.Context, userID string) bool {
	if err := authz.SelfOrStaff(caller(c), userID); err != nil {
		httpx.Fail(c, err)
		return false
	}
	return true
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
