package users

import (
	"context"
	"strings"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// SettingsPatch changes the fields that are set.
type SettingsPatch struct {
	Language           *string `json:"language"`
	EmailNotifications *bool   `json:"emailNotifications"`
	PushNotifications  *bool   `json:"pushNotifications"`
}

func (s *Service) staff(ctx context.Context, id string) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Role.Staff() {
		return nil, apperr.Forbidden("settings are restricted to admin and supervisor accounts")
	}
	return u, nil
}

// GetSettings returns a staff member's settings, defaults included.
func (s *Service) GetSettings(ctx context.Context, id string) (models.Settings, error) {
	u, err := s.staff(ctx, id)
	if err != nil {
		return models.Settings{}, err
	}
	return u.EffectiveSettings(), nil
}

// UpdateSettings applies p to a staff member's settings.
func (s *Service) UpdateSettings(ctx context.Context, id string, p SettingsPatch) (models.Settings, error) {
	u, err := s.staff(ctx, id)
	if err != nil {
		return models.Settings{}, err
	}
	st := u.EffectiveSettings()
	if p.Language != nil {
		lang := strings.TrimSpace(*p.Language)
		if lang == "" {
			return models.Settings{}, apperr.Validation("language cannot be empty")
		}
		st.Language = lang
	}
	if p.EmailNotifications != nil {
		st.EmailNotifications = *p.EmailNotifications
	}
	if p.PushNotifications != nil {
		st.PushNotifications = *p.PushNotifications
	}
	u.Settings = &st
	u.UpdatedAt = models.Stamp(s.now())
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return models.Settings{}, err
	}
	return st, nil
}
