package users

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

var errBadResetToken = apperr.Validation("invalid or expired reset token")

// ResetRequest is a pending reset shown to administrators.
type ResetRequest struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Token       string `json:"token"`
	RequestedAt string `json:"requestedAt"`
	ExpiresAt   string `json:"expiresAt"`
	Approved    bool   `json:"approved"`
}

// RequestReset records a reset request for email and asks the
// administrators to approve it. Nothing is sent to the user yet.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	if err := validate.Email(email); err != nil {
		return err
	}
	u, err := s.store.UserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	now := models.Stamp(s.now())
	u.Reset = &models.PasswordReset{
		TokenHash:   string(hash),
		Token:       token,
		RequestedAt: now,
		ExpiresAt:   now.Add(s.cfg.ResetTTL),
	}
	u.UpdatedAt = now
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	s.notify.NotifyRoleBestEffort(ctx, models.RoleAdmin, models.NotifyPasswordResetRequest,
		"Demande de réinitialisation du mot de passe de "+u.FullName()+" ("+u.Email+")", u.ID)
	s.log.Info("password reset requested", zap.String("user_id", u.ID))
	return nil
}

// withResets lists every account holding an unexpired reset request.
func (s *Service) withResets(ctx context.Context) ([]models.User, error) {
	now := s.now()
	var out []models.User
	for _, role := range []models.Role{models.RoleUser, models.RoleSupervisor, models.RoleAdmin} {
		list, err := s.store.UsersByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, u := range list {
			if u.Reset != nil && now.Before(u.Reset.ExpiresAt) {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

// PendingResets lists the unexpired reset requests.
func (s *Service) PendingResets(ctx context.Context) ([]ResetRequest, error) {
	users, err := s.withResets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ResetRequest, 0, len(users))
	for _, u := range users {
		out = append(out, ResetRequest{
			UserID:      u.ID,
			Name:        u.FullName(),
			Email:       u.Email,
			Token:       u.Reset.Token,
			RequestedAt: u.Reset.RequestedAt.Format(time.RFC3339),
			ExpiresAt:   u.Reset.ExpiresAt.Format(time.RFC3339),
			Approved:    u.Reset.Approved,
		})
	}
	return out, nil
}

// ApproveReset confirms the request of userID and emails them the reset
// link.
func (s *Service) ApproveReset(ctx context.Context, adminID, token, userID string) error {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !s.validReset(u, token) {
		return errBadResetToken
	}
	u.Reset.Approved = true
	now := models.Stamp(s.now())
	u.UpdatedAt = now
	ev := models.NewOutboxEvent(models.MailPasswordReset, now, map[string]string{
		"link": strings.TrimRight(s.cfg.FrontendURL, "/") + "/reset-password/" + token,
	})
	ev.To = []string{u.Email}
	if err := s.store.UpdateUser(ctx, u, ev); err != nil {
		return err
	}
	s.log.Info("password reset approved", zap.String("user_id", u.ID), zap.String("admin_id", adminID))
	return nil
}

func (s *Service) validReset(u *models.User, token string) bool {
	r := u.Reset
	if r == nil || token == "" || !s.now().Before(r.ExpiresAt) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(r.TokenHash), []byte(token)) == nil
}

// ResetPassword sets a new password with an approved, unexpired token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := validate.Password(password); err != nil {
		return err
	}
	users, err := s.withResets(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		u := &users[i]
		if subtle.ConstantTimeCompare([]byte(u.Reset.Token), []byte(token)) != 1 {
			continue
		}
		if !u.Reset.Approved || !s.validReset(u, token) {
			return errBadResetToken
		}
		if err := s.setPassword(u, password); err != nil {
			return err
		}
		u.Reset = nil
		u.UpdatedAt = models.Stamp(s.now())
		if err := s.store.UpdateUser(ctx, u); err != nil {
			return err
		}
		s.log.Info("password reset", zap.String("user_id", u.ID))
		return nil
	}
	return errBadResetToken
}
