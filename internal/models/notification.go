package models

import "time"

// NotificationType tags what a notification is about.
type NotificationType string

// Possible values for NotificationType
const (
	NotifyPasswordResetRequest NotificationType = "password_reset_request"
	NotifyContactMessage       NotificationType = "contact_message"
	NotifyClaimSubmitted       NotificationType = "claim_submitted"
	NotifyClaimStatus          NotificationType = "claim_status"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID        string           `json:"id" dynamodbav:"notification_id"`
	UserID    string           `json:"userId" dynamodbav:"user_id"`
	Type      NotificationType `json:"type" dynamodbav:"type"`
	Message   string           `json:"message" dynamodbav:"message"`
	RelatedID string           `json:"relatedId,omitempty" dynamodbav:"related_id,omitempty"`
	Read      bool             `json:"read" dynamodbav:"read"`
	CreatedAt time.Time        `json:"createdAt" dynamodbav:"created_at"`
}

// ContactMessage is a message sent through the public contact form.
type ContactMessage struct {
	ID           string     `json:"id" dynamodbav:"message_id"`
	Name         string     `json:"name" dynamodbav:"name"`
	Email        string     `json:"email" dynamodbav:"email"`
	Subject      string     `json:"subject" dynamodbav:"subject"`
	Message      string     `json:"message" dynamodbav:"message"`
	Replied      bool       `json:"replied" dynamodbav:"replied"`
	ReplyMessage string     `json:"replyMessage,omitempty" dynamodbav:"reply_message,omitempty"`
	RepliedAt    *time.Time `json:"repliedAt,omitempty" dynamodbav:"replied_at,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" dynamodbav:"created_at"`
}

// OutboxState tracks delivery of an outbox event.
type OutboxState string

// Possible values for OutboxState
const (
	OutboxPending   OutboxState = "pending"
	OutboxDelivered OutboxState = "delivered"
	OutboxFailed    OutboxState = "failed"
)

// Email templates carried by outbox events.
const (
	MailContractConfirmation = "contract_confirmation"
	MailRenewalConfirmation  = "renewal_confirmation"
	MailContractExpired      = "contract_expired"
	MailClaimStatus          = "claim_status"
	MailPasswordReset        = "password_reset"
	MailContactReceived      = "contact_received"
	MailContactReply         = "contact_reply"
)

// OutboxEvent is an email queued by a state change and delivered later.
// When To is empty the recipient is resolved from UserID at delivery.
type OutboxEvent struct {
	ID          string            `json:"id" dynamodbav:"event_id"`
	Template    string            `json:"template" dynamodbav:"template"`
	To          []string          `json:"to,omitempty" dynamodbav:"to,omitempty"`
	UserID      string            `json:"userId,omitempty" dynamodbav:"user_id,omitempty"`
	Data        map[string]string `json:"data" dynamodbav:"data"`
	State       OutboxState       `json:"state" dynamodbav:"state"`
	Attempts    int               `json:"attempts" dynamodbav:"attempts"`
	LastError   string            `json:"lastError,omitempty" dynamodbav:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt" dynamodbav:"created_at"`
	DeliveredAt *time.Time        `json:"deliveredAt,omitempty" dynamodbav:"delivered_at,omitempty"`
}

// NewOutboxEvent returns a pending event for template.
func NewOutboxEvent(template string, now time.Time, data map[string]string) OutboxEvent {
	if data == nil {
		data = map[string]string{}
	}
	return OutboxEvent{
		ID:        NewID(),
		Template:  template,
		Data:      data,
		State:     OutboxPending,
		CreatedAt: now,
	}
}
