// Package store declares the persistence contract implemented by the
// DynamoDB repository and the in-memory store.
//
// Mutations that produce emails take the outbox events to write in the same
// unit of work.
package store

import (
	"context"
	"time"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// EndRange bounds a contract query on end date. Zero values are unbounded.
type EndRange struct {
	Before time.Time // end_date < Before
	From   time.Time // end_date >= From
}

// Match reports whether end falls inside the range.
func (r EndRange) Match(end time.Time) bool {
	if !r.Before.IsZero() && !end.Before(r.Before) {
		return false
	}
	if !r.From.IsZero() && end.Before(r.From) {
		return false
	}
	return true
}

// Transition moves a contract to To if its status is one of From.
type Transition struct {
	ID     string
	From   []models.ContractStatus
	To     models.ContractStatus
	At     time.Time
	Events []models.OutboxEvent
}

// Archive retires the contract superseded by a renewal. OfferVersion is the
// renewal version the caller holds after claiming the offer.
type Archive struct {
	ID           string
	ReplacedBy   string
	Reason       string
	At           time.Time
	OfferVersion int
}

// Contracts persists contracts.
type Contracts interface {
	CreateContract(ctx context.Context, c *models.Contract, events ...models.OutboxEvent) error
	GetContract(ctx context.Context, id string) (*models.Contract, error)
	ContractByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Contract, error)
	ContractsByUser(ctx context.Context, userID string) ([]models.Contract, error)
	ContractsByStatus(ctx context.Context, status models.ContractStatus, r EndRange) ([]models.Contract, error)
	TransitionContract(ctx context.Context, t Transition) (bool, error)
	SaveRenewalOffer(ctx context.Context, id string, offer models.RenewalData, allowed []models.ContractStatus) error
	ClaimRenewalOffer(ctx context.Context, id string, version int) error
	ReleaseRenewalOffer(ctx context.Context, id string, version int) error
	CommitRenewal(ctx context.Context, next *models.Contract, prev Archive, events ...models.OutboxEvent) error
}

// Users persists accounts.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User, events ...models.OutboxEvent) error
	SetProfilePic(ctx context.Context, userID, url string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
}

// Claims persists claims.
type Claims interface {
	CreateClaim(ctx context.Context, c *models.Claim) error
	GetClaim(ctx context.Context, id string) (*models.Claim, error)
	ClaimsByUser(ctx context.Context, userID string) ([]models.Claim, error)
	ClaimsByStatus(ctx context.Context, status models.ClaimStatus) ([]models.Claim, error)
	UpdateClaim(ctx context.Context, c *models.Claim, events ...models.OutboxEvent) error
	DeleteClaim(ctx context.Context, id string) error
}

// Notifications persists in-app notifications.
type Notifications interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	NotificationsByUser(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
}

// Contacts persists contact form messages.
type Contacts interface {
	CreateContactMessage(ctx context.Context, m *models.ContactMessage, events ...models.OutboxEvent) error
	GetContactMessage(ctx context.Context, id string) (*models.ContactMessage, error)
	ContactMessages(ctx context.Context) ([]models.ContactMessage, error)
	MarkContactReplied(ctx context.Context, id, reply string, at time.Time, events ...models.OutboxEvent) error
}

// Outbox persists queued emails.
type Outbox interface {
	EnqueueOutbox(ctx context.Context, events ...models.OutboxEvent) error
	PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	GetOutboxEvent(ctx context.Context, id string) (*models.OutboxEvent, error)
	SaveOutboxEvent(ctx context.Context, e *models.OutboxEvent) error
}

// Tasks persists the staff task board.
type Tasks interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	Tasks(ctx context.Context) ([]models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// Store is everything the application persists.
type Store interface {
	Contracts
	Users
	Claims
	Notifications
	Contacts
	Outbox
	Tasks
}
