// Package outbox delivers the emails queued by state changes. Events are
// written in the same unit of work as the change that produced them and
// delivered here, either by a periodic drain or from the table's stream.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/ddb"
	"github.com/kylejryan/insurance-policy-portal/internal/mailer"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

// DefaultMaxAttempts bounds delivery retries when none is configured.
const DefaultMaxAttempts = 5

// Store is the persistence the dispatcher needs.
type Store interface {
	store.Outbox
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Renderer turns a template and its data into a subject and HTML body.
type Renderer interface {
	Render(name string, data map[string]string) (string, string, error)
}

// Dispatcher delivers pending outbox events.
type Dispatcher struct {
	store       Store
	render      Renderer
	send        mailer.Sender
	maxAttempts int
	log         *zap.Logger
	now         func() time.Time
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(st Store, render Renderer, send mailer.Sender, maxAttempts int, log *zap.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Dispatcher{store: st, render: render, send: send, maxAttempts: maxAttempts, log: log, now: time.Now}
}

// Report summarises one drain.
type Report struct {
	Delivered int `json:"delivered"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}

// Drain delivers up to limit pending events. Delivery failures are recorded
// on the events; only store failures are returned.
func (d *Dispatcher) Drain(ctx context.Context, limit int) (Report, error) {
	var rep Report
	pending, err := d.store.PendingOutbox(ctx, limit)
	if err != nil {
		return rep, err
	}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		state, err := d.deliver(ctx, &pending[i])
		if err != nil {
			return rep, err
		}
		switch state {
		case models.OutboxDelivered:
			rep.Delivered++
		case models.OutboxFailed:
			rep.Failed++
		default:
			rep.Retrying++
		}
	}
	return rep, nil
}

// HandleStream delivers outbox events inserted into the table, as seen on
// its DynamoDB stream. Other records are ignored.
func (d *Dispatcher) HandleStream(ctx context.Context, ev events.DynamoDBEvent) error {
	for _, rec := range ev.Records {
		if rec.EventName != string(events.DynamoDBOperationTypeInsert) {
			continue
		}
		pk, ok := rec.Change.Keys["PK"]
		if !ok || pk.DataType() != events.DataTypeString || !ddb.IsOutboxKey(pk.String()) {
			continue
		}
		e, err := ddb.DecodeOutboxEvent(ddb.FromStreamImage(rec.Change.NewImage))
		if err != nil {
			d.log.Warn("skip undecodable outbox record", zap.String("event_id", rec.EventID), zap.Error(err))
			continue
		}
		// The periodic drain may have handled it already.
		current, err := d.store.GetOutboxEvent(ctx, e.ID)
		if err != nil {
			return err
		}
		if current.State != models.OutboxPending {
			continue
		}
		if _, err := d.deliver(ctx, current); err != nil {
			return err
		}
	}
	return nil
}

// deliver attempts one event and persists the outcome.
func (d *Dispatcher) deliver(ctx context.Context, e *models.OutboxEvent) (models.OutboxState, error) {
	log := d.log.With(zap.String("outbox_id", e.ID), zap.String("template", e.Template))

	sendErr := d.attempt(ctx, e)
	now := models.Stamp(d.now())
	if sendErr == nil {
		e.State = models.OutboxDelivered
		e.DeliveredAt = &now
		e.LastError = ""
		log.Info("email delivered", zap.Strings("to", e.To))
	} else {
		e.Attempts++
		e.LastError = sendErr.Error()
		if e.Attempts >= d.maxAttempts {
			e.State = models.OutboxFailed
			log.Error("email delivery abandoned", zap.Int("attempts", e.Attempts), zap.Error(sendErr))
		} else {
			log.Warn("email delivery failed", zap.Int("attempts", e.Attempts), zap.Error(sendErr))
		}
	}
	if err := d.store.SaveOutboxEvent(ctx, e); err != nil {
		return e.State, fmt.Errorf("save outbox event %s: %w", e.ID, err)
	}
	return e.State, nil
}

func (d *Dispatcher) attempt(ctx context.Context, e *models.OutboxEvent) error {
	data := make(map[string]string, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	if len(e.To) == 0 {
		if e.UserID == "" {
			return fmt.Errorf("event has neither recipient nor user")
		}
		u, err := d.store.GetUser(ctx, e.UserID)
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}
		e.To = []string{u.Email}
		if _, ok := data["name"]; !ok {
			data["name"] = u.FullName()
		}
	}
	subject, body, err := d.render.Render(e.Template, data)
	if err != nil {
		return err
	}
	return d.send.Send(ctx, e.To, subject, body)
}
