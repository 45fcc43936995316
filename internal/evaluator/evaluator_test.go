package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	calls [][]models.Alert
	err   error
}

func (s *recordingSink) HandleAlerts(ctx context.Context, userID int64, alerts []models.Alert) error {
	s.calls = append(s.calls, alerts)
	return s.err
}

// seedWeek fills 7 complete, stable days; the reference day has low steps and no sleep.
func seedWeek(store *fakeStore) {
	store.seedDaily(testUser, refDate, models.FieldSteps, floats(9000, 9100, 8900, 9050, 8950, 9000, 3000)...)
	store.seedDaily(testUser, refDate, models.FieldRestingHeartRate, floats(64, 66, 65, 64, 66, 65, 65)...)
	store.seedDaily(testUser, refDate, models.FieldSedentaryMinutes, floats(700, 700, 700, 700, 700, 700, 720)...)
	store.seedDaily(testUser, refDate, models.FieldSleepMinutes, append(floats(450, 460, 455, 450, 455, 460), nil)...)
}

func TestEvaluate_PersistsInRuleOrder(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)

	engine := NewEngine(store, zap.NewNop())
	alerted, err := engine.Evaluate(context.Background(), testUser, refTS)
	require.NoError(t, err)
	assert.True(t, alerted)

	require.Len(t, store.inserted, 2)
	assert.Equal(t, models.AlertActivityDrop, store.inserted[0].Type)
	assert.Equal(t, models.AlertDataQuality, store.inserted[1].Type)
	assert.Equal(t, "sleep_minutes", store.inserted[1].Details.Metric)

	for _, d := range store.inserted {
		assert.True(t, d.Type.Valid())
		assert.True(t, d.Priority.Valid())
		assert.Equal(t, testUser, d.UserID)
	}
}

func TestEvaluate_NoDataIsQuiet(t *testing.T) {
	store := newFakeStore()

	alerted, err := NewEngine(store, zap.NewNop()).Evaluate(context.Background(), testUser, refTS)
	require.NoError(t, err)
	assert.False(t, alerted)
	assert.Empty(t, store.inserted)
}

func TestEvaluate_ReadsStayInsideDeclaredWindows(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)

	_, err := NewEngine(store, zap.NewNop()).Evaluate(context.Background(), testUser, refTS)
	require.NoError(t, err)

	lower := refTS.Add(-7 * 24 * time.Hour)

	// one daily read per daily rule plus data_quality
	require.Len(t, store.dailyReads, 5)
	wantDays := []int{7, 3, 5, 7, 1}
	for i, r := range store.dailyReads {
		assert.Equal(t, refDate, r.To)
		assert.Equal(t, refDate.AddDate(0, 0, -(wantDays[i]-1)), r.From)
		assert.False(t, r.From.Before(lower))
	}

	// four anomaly metrics plus the inactivity steps read
	require.Len(t, store.intradayReads, 5)
	for _, r := range store.intradayReads {
		assert.Equal(t, refTS.Add(-24*time.Hour), r.From)
		assert.Equal(t, refTS, r.To)
	}
}

func TestEvaluate_StoreFailureAborts(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)
	store.failDaily = true

	alerted, err := NewEngine(store, zap.NewNop()).Evaluate(context.Background(), testUser, refTS)
	require.Error(t, err)
	assert.False(t, alerted)
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, testUser, evalErr.UserID)
	assert.Equal(t, refTS, evalErr.ReferenceTS)

	// the first rule failed; nothing else was attempted
	assert.Len(t, store.dailyReads, 1)
	assert.Empty(t, store.intradayReads)
	assert.Empty(t, store.inserted)
}

func TestEvaluate_IntradayFailureAbortsBeforeInsert(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)
	store.failIntraday = true

	_, err := NewEngine(store, zap.NewNop()).Evaluate(context.Background(), testUser, refTS)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intraday_anomalies")
	assert.Empty(t, store.inserted)
}

func TestRun_InsertFailureKeepsEarlierAlerts(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)
	store.failInsertAt = 2
	sink := &recordingSink{}

	alerts, err := NewEngine(store, zap.NewNop(), WithSinks(sink)).Run(context.Background(), testUser, refTS)
	require.Error(t, err)
	assert.Nil(t, alerts)
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, models.AlertActivityDrop, store.inserted[0].Type)
	assert.Empty(t, sink.calls)
}

func TestRun_DispatchesToSinks(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)
	failing := &recordingSink{err: errors.New("redis down")}
	ok := &recordingSink{}

	engine := NewEngine(store, zap.NewNop(), WithSinks(failing))
	engine.AddSink(ok)

	alerts, err := engine.Run(context.Background(), testUser, refTS)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(1), alerts[0].ID)
	assert.Equal(t, refTS, alerts[0].AlertTime)
	assert.False(t, alerts[0].Acknowledged)

	require.Len(t, failing.calls, 1)
	require.Len(t, ok.calls, 1)
	assert.Equal(t, alerts, ok.calls[0])
}

func TestDrafts_SameInputsSameDrafts(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)
	engine := NewEngine(store, zap.NewNop())

	first, err := engine.Drafts(context.Background(), testUser, refTS)
	require.NoError(t, err)
	second, err := engine.Drafts(context.Background(), testUser, refTS)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Empty(t, store.inserted)
}

func TestEvaluate_NoDeduplicationAcrossCalls(t *testing.T) {
	store := newFakeStore()
	seedWeek(store)
	engine := NewEngine(store, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := engine.Evaluate(context.Background(), testUser, refTS)
		require.NoError(t, err)
	}
	assert.Len(t, store.inserted, 4)
}

func TestEngine_ReferenceDateUsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	engine := NewEngine(newFakeStore(), zap.NewNop(), WithLocation(tokyo))
	// 20:00 UTC on the 22nd is already the 23rd in Tokyo
	req := engine.request(testUser, refTS)
	assert.Equal(t, time.Date(2025, 5, 23, 0, 0, 0, 0, time.UTC), req.ReferenceDate)
	assert.Equal(t, tokyo, engine.Location())
}
