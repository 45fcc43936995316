package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	commonredis "github.com/morenopablo16/fitbit-project-sub000/internal/common/redis"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type evaluateCall struct {
	UserID      int64
	ReferenceTS time.Time
}

type fakeEvaluator struct {
	mu      sync.Mutex
	calls   []evaluateCall
	alerted map[int64]bool
	fail    map[int64]error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, userID int64, referenceTS time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, evaluateCall{UserID: userID, ReferenceTS: referenceTS})
	if err := f.fail[userID]; err != nil {
		return false, err
	}
	return f.alerted[userID], nil
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var streamNow = time.Date(2025, 5, 23, 6, 0, 0, 0, time.UTC)

func setupStreamConsumer(t *testing.T, evaluator Evaluator) *StreamConsumer {
	_, redisClient := setupTestRedis(t)
	c := NewStreamConsumer(testConfig(), redisClient, evaluator, zap.NewNop())
	c.now = func() time.Time { return streamNow }
	c.block = -1

	err := commonredis.CreateConsumerGroup(context.Background(), redisClient, c.config.Alert.Stream, c.config.Alert.ConsumerGroup)
	require.NoError(t, err)
	return c
}

func pendingCount(t *testing.T, c *StreamConsumer) int64 {
	pending, err := c.redisClient.XPending(context.Background(), c.config.Alert.Stream, c.config.Alert.ConsumerGroup).Result()
	require.NoError(t, err)
	return pending.Count
}

func TestParseEvaluationRequest(t *testing.T) {
	req, err := ParseEvaluationRequest(map[string]interface{}{"user_id": "42"}, streamNow)
	require.NoError(t, err)
	assert.Equal(t, int64(42), req.UserID)
	assert.Equal(t, streamNow, req.ReferenceTS)

	req, err = ParseEvaluationRequest(map[string]interface{}{
		"user_id":      " 7 ",
		"reference_ts": "2025-05-22T20:00:00Z",
	}, streamNow)
	require.NoError(t, err)
	assert.Equal(t, int64(7), req.UserID)
	assert.Equal(t, time.Date(2025, 5, 22, 20, 0, 0, 0, time.UTC), req.ReferenceTS)

	bad := []map[string]interface{}{
		{},
		{"user_id": "abc"},
		{"user_id": "0"},
		{"user_id": "3", "reference_ts": "yesterday"},
	}
	for _, values := range bad {
		_, err := ParseEvaluationRequest(values, streamNow)
		assert.True(t, errors.Is(err, ErrMalformedRequest), "values %v", values)
	}
}

func TestPublishEvaluationRequest_RoundTrip(t *testing.T) {
	c := setupStreamConsumer(t, &fakeEvaluator{})
	ctx := context.Background()

	ts := time.Date(2025, 5, 22, 22, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	_, err := PublishEvaluationRequest(ctx, c.redisClient, c.config.Alert.Stream, EvaluationRequest{UserID: 11, ReferenceTS: ts})
	require.NoError(t, err)

	entries, err := c.redisClient.XRange(ctx, c.config.Alert.Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "11", entries[0].Values["user_id"])
	assert.Equal(t, "2025-05-22T20:00:00Z", entries[0].Values["reference_ts"])

	req, err := ParseEvaluationRequest(entries[0].Values, streamNow)
	require.NoError(t, err)
	assert.True(t, ts.Equal(req.ReferenceTS))
}

func TestStreamConsumer_PollEvaluatesAndAcks(t *testing.T) {
	evaluator := &fakeEvaluator{alerted: map[int64]bool{1: true}}
	c := setupStreamConsumer(t, evaluator)
	ctx := context.Background()

	_, err := PublishEvaluationRequest(ctx, c.redisClient, c.config.Alert.Stream, EvaluationRequest{UserID: 1})
	require.NoError(t, err)
	_, err = commonredis.PublishToStream(ctx, c.redisClient, c.config.Alert.Stream, map[string]interface{}{"user_id": "not-a-number"})
	require.NoError(t, err)
	_, err = PublishEvaluationRequest(ctx, c.redisClient, c.config.Alert.Stream, EvaluationRequest{
		UserID:      2,
		ReferenceTS: time.Date(2025, 5, 22, 20, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	acked, err := c.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, acked)
	assert.Equal(t, int64(0), pendingCount(t, c))

	require.Len(t, evaluator.calls, 2)
	assert.Equal(t, evaluateCall{UserID: 1, ReferenceTS: streamNow}, evaluator.calls[0])
	assert.Equal(t, int64(2), evaluator.calls[1].UserID)
	assert.Equal(t, time.Date(2025, 5, 22, 20, 0, 0, 0, time.UTC), evaluator.calls[1].ReferenceTS)

	// nothing new
	acked, err = c.poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, acked)
}

func TestStreamConsumer_StoreFailureStaysPending(t *testing.T) {
	outage := fmt.Errorf("query: %w", models.ErrStoreUnavailable)
	evaluator := &fakeEvaluator{fail: map[int64]error{5: outage, 6: errors.New("unexpected")}}
	c := setupStreamConsumer(t, evaluator)
	ctx := context.Background()

	for _, id := range []int64{5, 6} {
		_, err := PublishEvaluationRequest(ctx, c.redisClient, c.config.Alert.Stream, EvaluationRequest{UserID: id})
		require.NoError(t, err)
	}

	acked, err := c.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, int64(1), pendingCount(t, c))

	// store is back
	evaluator.fail = nil
	acked, err = c.drainPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	assert.Equal(t, int64(0), pendingCount(t, c))
	assert.Equal(t, int64(5), evaluator.calls[len(evaluator.calls)-1].UserID)
}

func TestStreamConsumer_RetriesPendingWhileRunning(t *testing.T) {
	outage := fmt.Errorf("query: %w", models.ErrStoreUnavailable)
	evaluator := &fakeEvaluator{fail: map[int64]error{5: outage}}
	c := setupStreamConsumer(t, evaluator)
	ctx := context.Background()

	_, err := PublishEvaluationRequest(ctx, c.redisClient, c.config.Alert.Stream, EvaluationRequest{UserID: 5})
	require.NoError(t, err)

	require.NoError(t, c.step(ctx))
	assert.Equal(t, int64(1), pendingCount(t, c))

	// store is back, but the retry is not due yet
	evaluator.fail = nil
	require.NoError(t, c.step(ctx))
	assert.Equal(t, int64(1), pendingCount(t, c))
	assert.Equal(t, 1, evaluator.callCount())

	c.now = func() time.Time { return streamNow.Add(c.retryInterval) }
	require.NoError(t, c.step(ctx))
	assert.Equal(t, int64(0), pendingCount(t, c))
	assert.Equal(t, 2, evaluator.callCount())

	// nothing left to retry
	require.NoError(t, c.step(ctx))
	assert.Equal(t, 2, evaluator.callCount())
}

func TestPublishEvaluationRequest_KeepsSubSecondPrecision(t *testing.T) {
	c := setupStreamConsumer(t, &fakeEvaluator{})
	ctx := context.Background()

	ts := time.Date(2025, 5, 22, 20, 0, 0, 750_000_000, time.UTC)
	_, err := PublishEvaluationRequest(ctx, c.redisClient, c.config.Alert.Stream, EvaluationRequest{UserID: 4, ReferenceTS: ts})
	require.NoError(t, err)

	entries, err := c.redisClient.XRange(ctx, c.config.Alert.Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2025-05-22T20:00:00.75Z", entries[0].Values["reference_ts"])

	req, err := ParseEvaluationRequest(entries[0].Values, streamNow)
	require.NoError(t, err)
	assert.True(t, ts.Equal(req.ReferenceTS))
}

func TestStreamPublisher_FeedsConsumer(t *testing.T) {
	evaluator := &fakeEvaluator{}
	c := setupStreamConsumer(t, evaluator)
	ctx := context.Background()

	publisher := NewStreamPublisher(c.redisClient, c.config.Alert.Stream)
	ref := time.Date(2025, 5, 21, 23, 59, 0, 0, time.UTC)
	require.NoError(t, publisher.PublishEvaluation(ctx, EvaluationRequest{UserID: 3, ReferenceTS: ref}))

	acked, err := c.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, acked)
	require.Len(t, evaluator.calls, 1)
	assert.Equal(t, evaluateCall{UserID: 3, ReferenceTS: ref}, evaluator.calls[0])
}
