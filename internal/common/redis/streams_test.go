package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "evaluations", "engine"))
	require.NoError(t, CreateConsumerGroup(ctx, client, "evaluations", "engine"))
}

func TestPublishAndRead(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, CreateConsumerGroup(ctx, client, "evaluations", "engine"))

	ts := time.Date(2025, 5, 21, 23, 0, 0, 0, time.UTC)
	id, err := PublishToStream(ctx, client, "evaluations", map[string]interface{}{
		"user_id":      int64(7),
		"reference_ts": ts,
		"dry_run":      false,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadFromStream(ctx, client, "evaluations", "engine", "worker-1", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "7", msgs[0].Values["user_id"])
	assert.Equal(t, "2025-05-21T23:00:00Z", msgs[0].Values["reference_ts"])
	assert.Equal(t, "false", msgs[0].Values["dry_run"])

	require.NoError(t, AckMessages(ctx, client, "evaluations", "engine", id))

	pending, err := client.XPending(ctx, "evaluations", "engine").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}
