package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/plan-export-api/internal/models"
)

const lastEventTTL = 24 * time.Hour

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// NotificationRepository publishes export events on a Redis channel and keeps
// the latest event per class or student under a TTL key.
type NotificationRepository struct {
	client  redisPublisher
	channel string
	logger  *zap.Logger
}

// NewNotificationRepository constructs the repository. A nil client turns
// Publish into a no-op.
func NewNotificationRepository(client redisPublisher, channel string, logger *zap.Logger) *NotificationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationRepository{client: client, channel: channel, logger: logger}
}

// Publish sends the event to subscribers.
func (r *NotificationRepository) Publish(ctx context.Context, event models.ExportEvent) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal export event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	key := LastEventKey(r.channel, event)
	if err := r.client.Set(ctx, key, payload, lastEventTTL).Err(); err != nil {
		r.logger.Sugar().Warnw("failed to store last export event", "key", key, "error", err)
	}
	return nil
}

// LastEventKey builds the key holding the most recent event for the subject
// of an export.
func LastEventKey(channel string, event models.ExportEvent) string {
	subject := event.ClassID
	if event.Kind == models.ExportKindSingle {
		subject = event.SchoolID
	}
	return fmt.Sprintf("%s:last:%s:%s", channel, event.Kind, subject)
}
