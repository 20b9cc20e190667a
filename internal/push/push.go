// Package push relays in-app notifications to connected clients through
// Redis pub/sub.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// Channel is the pub/sub channel carrying userID's notifications.
func Channel(userID string) string { return "notifications:" + userID }

// Hub publishes and subscribes to notification channels. A Hub without a
// Redis client is disabled: Publish is a no-op and Subscribe fails.
type Hub struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewHub returns a hub over rdb, which may be nil.
func NewHub(rdb *redis.Client, log *zap.Logger) *Hub {
	return &Hub{rdb: rdb, log: log}
}

// Enabled reports whether a Redis client is configured.
func (h *Hub) Enabled() bool { return h != nil && h.rdb != nil }

// Publish sends n to its recipient's channel.
func (h *Hub) Publish(ctx context.Context, n models.Notification) error {
	if !h.Enabled() {
		return nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, Channel(n.UserID), b).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscription streams one user's notifications until closed.
type Subscription struct {
	C  <-chan models.Notification
	ps *redis.PubSub
}

// Close stops the subscription.
func (s *Subscription) Close() error { return s.ps.Close() }

// Subscribe listens on userID's channel. The returned channel closes when
// the subscription is closed.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if !h.Enabled() {
		return nil, fmt.Errorf("push disabled")
	}
	ps := h.rdb.Subscribe(ctx, Channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(userID), err)
	}
	out := make(chan models.Notification, 16)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var n models.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				h.log.Warn("drop malformed push payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			out <- n
		}
	}()
	return &Subscription{C: out, ps: ps}, nil
}
