// Package contact handles the public contact form and staff replies.
package contact

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

// Store is the persistence the service needs.
type Store interface {
	store.Contacts
	UsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// Notifier fans notifications out to staff.
type Notifier interface {
	NotifyRoleBestEffort(ctx context.Context, role models.Role, typ models.NotificationType, message, relatedID string)
}

// Service manages contact messages.
type Service struct {
	store  Store
	notify Notifier
	log    *zap.Logger
	now    func() time.Time
}

// New returns a contact service.
func New(st Store, notify Notifier, log *zap.Logger) *Service {
	return &Service{store: st, notify: notify, log: log, now: time.Now}
}

// SubmitInput is a contact form post.
type SubmitInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Submit stores the message, emails it to the supervisors and notifies them.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.ContactMessage, error) {
	if err := validate.All(
		func() error { return validate.Required(in.Name, "name") },
		func() error { return validate.Email(in.Email) },
		func() error { return validate.Required(in.Subject, "subject") },
		func() error { return validate.Required(in.Message, "message") },
	); err != nil {
		return nil, err
	}
	now := models.Stamp(s.now())
	m := &models.ContactMessage{
		ID:        models.NewID(),
		Name:      strings.TrimSpace(in.Name),
		Email:     models.NormalizeEmail(in.Email),
		Subject:   strings.TrimSpace(in.Subject),
		Message:   strings.TrimSpace(in.Message),
		CreatedAt: now,
	}

	supervisors, err := s.store.UsersByRole(ctx, models.RoleSupervisor)
	if err != nil {
		return nil, err
	}
	var events []models.OutboxEvent
	if len(supervisors) > 0 {
		ev := models.NewOutboxEvent(models.MailContactReceived, now, map[string]string{
			"name":    m.Name,
			"email":   m.Email,
			"subject": m.Subject,
			"message": m.Message,
		})
		for _, u := range supervisors {
			ev.To = append(ev.To, u.Email)
		}
		events = append(events, ev)
	} else {
		s.log.Warn("no supervisor to receive contact message", zap.String("message_id", m.ID))
	}
	if err := s.store.CreateContactMessage(ctx, m, events...); err != nil {
		return nil, err
	}
	s.notify.NotifyRoleBestEffort(ctx, models.RoleSupervisor, models.NotifyContactMessage,
		"Nouveau message de "+m.Name+" : "+m.Subject, m.ID)
	return m, nil
}

// List returns every message, newest first.
func (s *Service) List(ctx context.Context) ([]models.ContactMessage, error) {
	return s.store.ContactMessages(ctx)
}

// ReplyInput is a staff answer to a message.
type ReplyInput struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Text      string `json:"text"`
}

// Reply emails the answer and marks the message replied.
func (s *Service) Reply(ctx context.Context, in ReplyInput) (*models.ContactMessage, error) {
	if err := validate.All(
		func() error { return validate.ID(in.MessageID, "message") },
		func() error { return validate.Email(in.To) },
		func() error { return validate.Required(in.Subject, "subject") },
		func() error { return validate.Required(in.Text, "text") },
	); err != nil {
		return nil, err
	}
	if _, err := s.store.GetContactMessage(ctx, in.MessageID); err != nil {
		return nil, err
	}
	now := models.Stamp(s.now())
	text := strings.TrimSpace(in.Text)
	ev := models.NewOutboxEvent(models.MailContactReply, now, map[string]string{
		"subject": strings.TrimSpace(in.Subject),
		"message": text,
	})
	ev.To = []string{models.NormalizeEmail(in.To)}
	if err := s.store.MarkContactReplied(ctx, in.MessageID, text, now, ev); err != nil {
		return nil, err
	}
	s.log.Info("contact message replied", zap.String("message_id", in.MessageID))
	return s.store.GetContactMessage(ctx, in.MessageID)
}
