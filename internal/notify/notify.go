// Package notify writes in-app notifications and pushes them to connected
// clients.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

// Store is the persistence the service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
	store.Notifications
}

// Publisher pushes a notification to its recipient.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Service manages notifications.
type Service struct {
	store Store
	push  Publisher
	log   *zap.Logger
	now   func() time.Time
}

// New returns a notification service. push may be nil.
func New(st Store, push Publisher, log *zap.Logger) *Service {
	return &Service{store: st, push: push, log: log, now: time.Now}
}

func (s *Service) create(ctx context.Context, u *models.User, typ models.NotificationType, message, relatedID string) (*models.Notification, error) {
	n := &models.Notification{
		ID:        models.NewID(),
		UserID:    u.ID,
		Type:      typ,
		Message:   message,
		RelatedID: relatedID,
		CreatedAt: models.Stamp(s.now()),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	if s.push != nil && u.EffectiveSettings().PushNotifications {
		if err := s.push.Publish(ctx, *n); err != nil {
			s.log.Warn("push notification failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	return n, nil
}

// NotifyRole creates one notification per user holding role. Fan-out is not
// atomic: it stops at the first failure and reports how many were created.
func (s *Service) NotifyRole(ctx context.Context, role models.Role, typ models.NotificationType, message, relatedID string) (int, error) {
	users, err := s.store.UsersByRole(ctx, role)
	if err != nil {
		return 0, err
	}
	created := 0
	for i := range users {
		if _, err := s.create(ctx, &users[i], typ, message, relatedID); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// NotifyRoleBestEffort runs NotifyRole and only logs a failure.
func (s *Service) NotifyRoleBestEffort(ctx context.Context, role models.Role, typ models.NotificationType, message, relatedID string) {
	n, err := s.NotifyRole(ctx, role, typ, message, relatedID)
	if err != nil {
		s.log.Warn("notification fan-out incomplete",
			zap.String("role", string(role)),
			zap.String("type", string(typ)),
			zap.Int("created", n),
			zap.Error(err))
	}
}

// NotifyUser creates a notification for one user.
func (s *Service) NotifyUser(ctx context.Context, userID string, typ models.NotificationType, message, relatedID string) (*models.Notification, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, u, typ, message, relatedID)
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.store.NotificationsByUser(ctx, userID)
}

// UnreadCount counts the user's unread notifications.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	list, err := s.store.NotificationsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, x := range list {
		if !x.Read {
			n++
		}
	}
	return n, nil
}

// MarkRead flags one notification. It is not found unless owned by userID.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, userID, id)
}

// MarkAllRead flags every unread notification of userID.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}
