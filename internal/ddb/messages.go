package ddb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// ---- notifications ----

func notificationKey(userID, id string) map[string]types.AttributeValue {
	return MakeKeys(pfxUser+userID, pfxNotif+id)
}

// CreateNotification stores n under its recipient's partition.
func (r *Repo) CreateNotification(ctx context.Context, n *models.Notification) error {
	item, err := marshalItem(n, map[string]string{
		attrPK: pfxUser + n.UserID,
		attrSK: pfxNotif + n.ID,
	})
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{TableName: awsStr(r.Table), Item: item})
	if err != nil {
		return fmt.Errorf("ddb put notification: %w", err)
	}
	return nil
}

// NotificationsByUser lists a user's notifications newest first.
func (r *Repo) NotificationsByUser(ctx context.Context, userID string) ([]models.Notification, error) {
	in, err := r.query("", beginsWith(attrPK, pfxUser+userID, attrSK, pfxNotif), false)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead flags one of the user's notifications as read. The
// key includes the user, so another user's notification is not found.
func (r *Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	u, err := r.update(notificationKey(userID, id), expression.Set(expression.Name("read"), expression.Value(true)), exists())
	if err != nil {
		return err
	}
	return r.updateItem(ctx, u, apperr.NotFound("notification not found"))
}

// MarkAllNotificationsRead flags every unread notification of the user.
func (r *Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	list, err := r.NotificationsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range list {
		if n.Read {
			continue
		}
		if err := r.MarkNotificationRead(ctx, userID, n.ID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ---- contact messages ----

func contactKey(id string) map[string]types.AttributeValue {
	return MakeKeys(pfxContact+id, skContact)
}

// CreateContactMessage stores m and queues events in one transaction.
func (r *Repo) CreateContactMessage(ctx context.Context, m *models.ContactMessage, events ...models.OutboxEvent) error {
	item, err := marshalItem(m, map[string]string{
		attrPK:     pfxContact + m.ID,
		attrSK:     skContact,
		attrGSI1PK: pkContacts,
		attrGSI1SK: pfxContact + m.ID,
	})
	if err != nil {
		return err
	}
	p, err := r.put(item, notExists())
	if err != nil {
		return err
	}
	t := &txn{}
	t.add(types.TransactWriteItem{Put: p}, apperr.Conflict("message already exists"))
	if err := r.addEvents(t, events); err != nil {
		return err
	}
	return r.commit(ctx, t)
}

// GetContactMessage returns the message with id.
func (r *Repo) GetContactMessage(ctx context.Context, id string) (*models.ContactMessage, error) {
	item, err := r.getItem(ctx, contactKey(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("message not found")
	}
	var m models.ContactMessage
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, fmt.Errorf("decode contact message: %w", err)
	}
	return &m, nil
}

// ContactMessages lists messages newest first.
func (r *Repo) ContactMessages(ctx context.Context) ([]models.ContactMessage, error) {
	in, err := r.query(indexGSI1, beginsWith(attrGSI1PK, pkContacts, attrGSI1SK, pfxContact), false)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.ContactMessage, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("decode contact messages: %w", err)
	}
	return out, nil
}

// MarkContactReplied records the reply and queues events in one transaction.
func (r *Repo) MarkContactReplied(ctx context.Context, id, reply string, at time.Time, events ...models.OutboxEvent) error {
	upd := expression.Set(expression.Name("replied"), expression.Value(true)).
		Set(expression.Name("reply_message"), expression.Value(reply)).
		Set(expression.Name("replied_at"), expression.Value(at))
	u, err := r.update(contactKey(id), upd, exists())
	if err != nil {
		return err
	}
	t := &txn{}
	t.add(types.TransactWriteItem{Update: u}, apperr.NotFound("message not found"))
	if err := r.addEvents(t, events); err != nil {
		return err
	}
	return r.commit(ctx, t)
}

// ---- outbox ----

func outboxKey(id string) map[string]types.AttributeValue {
	return MakeKeys(pfxOutbox+id, skOutbox)
}

func outboxItem(e *models.OutboxEvent) (map[string]types.AttributeValue, error) {
	return marshalItem(e, map[string]string{
		attrPK:     pfxOutbox + e.ID,
		attrSK:     skOutbox,
		attrGSI2PK: pfxOutbox + string(e.State),
		attrGSI2SK: pfxOutbox + e.ID,
	})
}

// DecodeOutboxEvent decodes an outbox item, e.g. a stream NewImage.
func DecodeOutboxEvent(item map[string]types.AttributeValue) (*models.OutboxEvent, error) {
	var e models.OutboxEvent
	if err := attributevalue.UnmarshalMap(item, &e); err != nil {
		return nil, fmt.Errorf("decode outbox event: %w", err)
	}
	return &e, nil
}

// IsOutboxKey reports whether pk belongs to an outbox item.
func IsOutboxKey(pk string) bool {
	return strings.HasPrefix(pk, pfxOutbox)
}

// EnqueueOutbox writes events outside any other unit of work.
func (r *Repo) EnqueueOutbox(ctx context.Context, events ...models.OutboxEvent) error {
	for i := range events {
		item, err := outboxItem(&events[i])
		if err != nil {
			return err
		}
		if _, err := r.DB.PutItem(ctx, &dynamodb.PutItemInput{TableName: awsStr(r.Table), Item: item}); err != nil {
			return fmt.Errorf("ddb put outbox: %w", err)
		}
	}
	return nil
}

// PendingOutbox returns up to limit pending events, oldest first.
func (r *Repo) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	in, err := r.query(indexGSI2, beginsWith(attrGSI2PK, pfxOutbox+string(models.OutboxPending), attrGSI2SK, pfxOutbox), true)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	items, err := r.queryAll(ctx, in, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.OutboxEvent, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("decode outbox: %w", err)
	}
	return out, nil
}

// GetOutboxEvent returns the event with id.
func (r *Repo) GetOutboxEvent(ctx context.Context, id string) (*models.OutboxEvent, error) {
	item, err := r.getItem(ctx, outboxKey(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("outbox event not found")
	}
	return DecodeOutboxEvent(item)
}

// SaveOutboxEvent replaces an event after a delivery attempt.
func (r *Repo) SaveOutboxEvent(ctx context.Context, e *models.OutboxEvent) error {
	item, err := outboxItem(e)
	if err != nil {
		return err
	}
	_, err = r.DB.PutItem(ctx, &dynamodb.PutItemInput{TableName: awsStr(r.Table), Item: item})
	if err != nil {
		return fmt.Errorf("ddb put outbox: %w", err)
	}
	return nil
}
