package consumer

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUserLister struct {
	users []models.User
	err   error
}

func (f *fakeUserLister) ListCurrentUsers(ctx context.Context) ([]models.User, error) {
	return f.users, f.err
}

func usersWithIDs(ids ...int64) []models.User {
	users := make([]models.User, len(ids))
	for i, id := range ids {
		users[i] = models.User{ID: id, Email: "user@example.com"}
	}
	return users
}

func TestScheduler_TickEvaluatesEveryUserOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Alert.BatchSize = 4
	cfg.Alert.Workers = 3

	evaluator := &fakeEvaluator{
		alerted: map[int64]bool{2: true, 9: true},
		fail:    map[int64]error{5: models.ErrStoreUnavailable},
	}
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	scheduler := NewScheduler(cfg, &fakeUserLister{users: usersWithIDs(ids...)}, evaluator, zap.NewNop())
	ref := time.Date(2025, 5, 22, 20, 0, 0, 0, time.UTC)
	scheduler.now = func() time.Time { return ref }

	result, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{Users: 10, Alerted: 2, Failed: 1}, result)

	seen := make([]int64, 0, len(evaluator.calls))
	for _, call := range evaluator.calls {
		assert.Equal(t, ref, call.ReferenceTS)
		seen = append(seen, call.UserID)
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	assert.Equal(t, ids, seen)
}

func TestScheduler_TickListFailure(t *testing.T) {
	evaluator := &fakeEvaluator{}
	scheduler := NewScheduler(testConfig(), &fakeUserLister{err: models.ErrStoreUnavailable}, evaluator, zap.NewNop())

	_, err := scheduler.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))
	assert.Empty(t, evaluator.calls)
}

func TestScheduler_TickCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evaluator := &fakeEvaluator{}
	scheduler := NewScheduler(testConfig(), &fakeUserLister{users: usersWithIDs(1, 2, 3)}, evaluator, zap.NewNop())

	_, err := scheduler.Tick(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, evaluator.calls)
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	cfg := testConfig()
	cfg.Alert.PollInterval = time.Hour

	evaluator := &fakeEvaluator{}
	scheduler := NewScheduler(cfg, &fakeUserLister{users: usersWithIDs(1)}, evaluator, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Start(ctx) }()

	require.Eventually(t, func() bool { return evaluator.callCount() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
