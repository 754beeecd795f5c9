package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/plan-export-api/internal/models"
)

type publishCall struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	published  []publishCall
	keys       map[string]time.Duration
	publishErr error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published = append(f.published, publishCall{channel: channel, payload: message.([]byte)})
	return redis.NewIntResult(1, f.publishErr)
}

func (f *fakePublisher) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.keys == nil {
		f.keys = map[string]time.Duration{}
	}
	f.keys[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestNotificationRepositoryPublish(t *testing.T) {
	client := &fakePublisher{}
	repo := NewNotificationRepository(client, "plan-export.events", nil)

	event := models.ExportEvent{Kind: models.ExportKindClass, ClassID: "C1", Outcome: models.ExportOutcomeSuccess, Total: 3}
	require.NoError(t, repo.Publish(context.Background(), event))

	require.Len(t, client.published, 1)
	require.Equal(t, "plan-export.events", client.published[0].channel)
	var decoded models.ExportEvent
	require.NoError(t, json.Unmarshal(client.published[0].payload, &decoded))
	require.Equal(t, "C1", decoded.ClassID)
	require.Equal(t, 3, decoded.Total)
	require.Equal(t, lastEventTTL, client.keys["plan-export.events:last:class:C1"])
}

func TestNotificationRepositoryPublishError(t *testing.T) {
	client := &fakePublisher{publishErr: errors.New("connection refused")}
	repo := NewNotificationRepository(client, "events", nil)

	err := repo.Publish(context.Background(), models.ExportEvent{Kind: models.ExportKindSingle, SchoolID: "14051531"})
	require.Error(t, err)
	require.Empty(t, client.keys)
}

func TestNotificationRepositoryNilClient(t *testing.T) {
	repo := NewNotificationRepository(nil, "events", nil)
	require.NoError(t, repo.Publish(context.Background(), models.ExportEvent{}))
}

func TestLastEventKeyUsesStudentForSingleExports(t *testing.T) {
	key := LastEventKey("events", models.ExportEvent{Kind: models.ExportKindSingle, SchoolID: "14051531", ClassID: "C1"})
	require.Equal(t, "events:last:single:14051531", key)
}
