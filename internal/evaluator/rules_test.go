package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser int64 = 1

var (
	refTS   = time.Date(2025, 5, 22, 20, 0, 0, 0, time.UTC)
	refDate = time.Date(2025, 5, 22, 0, 0, 0, 0, time.UTC)
)

func newTestEngine(store Store) *Engine {
	return NewEngine(store, zap.NewNop())
}

func evaluateRule(t *testing.T, store *fakeStore, build func(*Engine) RuleEvaluator) []models.AlertDraft {
	t.Helper()
	engine := newTestEngine(store)
	drafts, err := build(engine).Evaluate(context.Background(), engine.request(testUser, refTS))
	require.NoError(t, err)
	return drafts
}

func activityDrop(e *Engine) RuleEvaluator      { return NewActivityDropEvaluator(e) }
func sedentaryIncrease(e *Engine) RuleEvaluator { return NewSedentaryIncreaseEvaluator(e) }
func sleepChange(e *Engine) RuleEvaluator       { return NewSleepDurationChangeEvaluator(e) }
func heartRateAnomaly(e *Engine) RuleEvaluator  { return NewHeartRateAnomalyEvaluator(e) }
func intradayAnomaly(e *Engine) RuleEvaluator   { return NewIntradayAnomalyEvaluator(e) }
func inactivity(e *Engine) RuleEvaluator        { return NewIntradayActivityDropEvaluator(e) }
func dataQuality(e *Engine) RuleEvaluator       { return NewDataQualityEvaluator(e) }

// ============================================
// activity_drop
// ============================================

func TestActivityDrop_HighSeverity(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSteps,
		floats(10000, 10200, 9800, 10100, 9900, 10050, 2000)...)

	drafts := evaluateRule(t, store, activityDrop)
	require.Len(t, drafts, 1)

	d := drafts[0]
	assert.Equal(t, models.AlertActivityDrop, d.Type)
	assert.Equal(t, models.PriorityHigh, d.Priority)
	assert.Equal(t, 2000.0, *d.TriggeringValue)
	assert.InDelta(t, 7506.25, *d.ThresholdValue.Number, 1e-9)
	assert.InDelta(t, 10008.33, *d.Details.Mean, 0.01)
	assert.Equal(t, 7, d.Details.SampleCount)
	assert.Equal(t, "2025-05-16", d.Details.WindowStart)
	assert.Equal(t, refTS, d.ReferenceTime)
}

func TestActivityDrop_Medium(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSteps, floats(8000, 8000, 5000)...)

	drafts := evaluateRule(t, store, activityDrop)
	require.Len(t, drafts, 1)
	assert.Equal(t, models.PriorityMedium, drafts[0].Priority)
}

func TestActivityDrop_ExactlyAtThresholdDoesNotFire(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSteps, floats(100, 100, 75)...)

	assert.Empty(t, evaluateRule(t, store, activityDrop))
}

func TestActivityDrop_InsufficientData(t *testing.T) {
	cases := []struct {
		name   string
		values []*float64
	}{
		{"only current day", floats(2000)},
		{"current day missing", append(floats(10000, 10000), nil)},
		{"current day out of range", floats(10000, 10000, 60000)},
		{"priors all null", []*float64{nil, nil, models.Float(10)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.seedDaily(testUser, refDate, models.FieldSteps, tc.values...)
			assert.Empty(t, evaluateRule(t, store, activityDrop))
		})
	}
}

func TestActivityDrop_IgnoresRowsOutsideWindow(t *testing.T) {
	store := newFakeStore()
	// 8 days back is outside the 7-day window; only the current day remains in range
	store.seedDaily(testUser, refDate, models.FieldSteps,
		models.Float(10000), nil, nil, nil, nil, nil, nil, models.Float(100))

	assert.Empty(t, evaluateRule(t, store, activityDrop))
}

func TestActivityDrop_NonPositiveMeanSkips(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSteps, floats(0, 0, 0)...)

	assert.Empty(t, evaluateRule(t, store, activityDrop))
}

// ============================================
// sedentary_increase
// ============================================

func TestSedentaryIncrease_Medium(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSedentaryMinutes, floats(800, 820, 1100)...)

	drafts := evaluateRule(t, store, sedentaryIncrease)
	require.Len(t, drafts, 1)
	assert.Equal(t, models.AlertSedentaryIncrease, drafts[0].Type)
	assert.Equal(t, models.PriorityMedium, drafts[0].Priority)
	assert.Equal(t, 1100.0, *drafts[0].TriggeringValue)
	assert.InDelta(t, 1053.0, *drafts[0].ThresholdValue.Number, 1e-9)
}

func TestSedentaryIncrease_High(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSedentaryMinutes, floats(600, 600, 1000)...)

	drafts := evaluateRule(t, store, sedentaryIncrease)
	require.Len(t, drafts, 1)
	assert.Equal(t, models.PriorityHigh, drafts[0].Priority)
}

func TestSedentaryIncrease_ExactlyAtThresholdDoesNotFire(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSedentaryMinutes, floats(100, 100, 130)...)

	assert.Empty(t, evaluateRule(t, store, sedentaryIncrease))
}

func TestSedentaryIncrease_WindowIsThreeDays(t *testing.T) {
	store := newFakeStore()
	// the low value 3 days back would otherwise pull the mean down
	store.seedDaily(testUser, refDate, models.FieldSedentaryMinutes, floats(100, 900, 900, 1000)...)

	assert.Empty(t, evaluateRule(t, store, sedentaryIncrease))
}

// ============================================
// sleep_duration_change
// ============================================

func TestSleepDurationChange_Reduction(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSleepMinutes, floats(480, 470, 490, 475, 300)...)

	drafts := evaluateRule(t, store, sleepChange)
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, models.AlertSleepDurationChange, d.Type)
	assert.Equal(t, models.PriorityMedium, d.Priority)
	assert.InDelta(t, 359.06, *d.ThresholdValue.Number, 0.01)
	assert.Equal(t, "decrease", d.Details.Direction)
}

func TestSleepDurationChange_Increase(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSleepMinutes, floats(400, 400, 400, 600)...)

	drafts := evaluateRule(t, store, sleepChange)
	require.Len(t, drafts, 1)
	assert.Equal(t, 500.0, *drafts[0].ThresholdValue.Number)
	assert.Equal(t, "increase", drafts[0].Details.Direction)
}

func TestSleepDurationChange_RequiresThreeSamples(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldSleepMinutes, floats(480, 200)...)

	assert.Empty(t, evaluateRule(t, store, sleepChange))
}

// ============================================
// heart_rate_anomaly
// ============================================

func TestHeartRateAnomaly_Fires(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldRestingHeartRate,
		floats(68, 70, 72, 69, 71, 70, 95)...)

	drafts := evaluateRule(t, store, heartRateAnomaly)
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, models.AlertHeartRateAnomaly, d.Type)
	assert.Equal(t, models.PriorityHigh, d.Priority)
	assert.Equal(t, 95.0, *d.TriggeringValue)
	assert.InDelta(t, 70.0, *d.Details.Mean, 1e-9)
	assert.InDelta(t, 1.29, *d.Details.StdDev, 0.01)
	assert.InDelta(t, 71.94, *d.ThresholdValue.Number, 0.01)
}

func TestHeartRateAnomaly_LowSideThreshold(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldRestingHeartRate, floats(68, 72, 50)...)

	drafts := evaluateRule(t, store, heartRateAnomaly)
	require.Len(t, drafts, 1)
	assert.InDelta(t, 67.0, *drafts[0].ThresholdValue.Number, 1e-9)
}

func TestHeartRateAnomaly_IdenticalValuesSkip(t *testing.T) {
	store := newFakeStore()
	store.seedDaily(testUser, refDate, models.FieldRestingHeartRate, floats(70, 70, 70, 70, 95)...)

	assert.Empty(t, evaluateRule(t, store, heartRateAnomaly))
}

func TestHeartRateAnomaly_OutOfRangePriorsDropped(t *testing.T) {
	store := newFakeStore()
	// 250 is outside [30, 200] and must not widen σ
	store.seedDaily(testUser, refDate, models.FieldRestingHeartRate, floats(250, 68, 72, 80)...)

	drafts := evaluateRule(t, store, heartRateAnomaly)
	require.Len(t, drafts, 1)
	assert.Equal(t, 3, drafts[0].Details.SampleCount)
}

// ============================================
// intraday anomalies
// ============================================

func heartRateSeries(n int, spikeAt int, spike float64) []models.IntradayPoint {
	start := refTS.Add(-time.Duration(n) * time.Minute)
	return minuteSeries(testUser, models.MetricHeartRate, start, n, func(i int, _ time.Time) float64 {
		if i == spikeAt {
			return spike
		}
		return 60
	})
}

func TestIntradayAnomaly_TenPointsProceed(t *testing.T) {
	store := newFakeStore()
	store.seedIntraday(heartRateSeries(10, 9, 120)...)

	drafts := evaluateRule(t, store, intradayAnomaly)
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, models.AlertHeartRateAnomalyIntraday, d.Type)
	assert.Equal(t, models.PriorityMedium, d.Priority)
	assert.Equal(t, 120.0, *d.TriggeringValue)
	assert.Equal(t, "30-102", d.ThresholdValue.Range)
	assert.Equal(t, 10, d.Details.SampleCount)
	assert.Equal(t, 1, d.Details.AnomalyCount)
}

func TestIntradayAnomaly_NinePointsSkip(t *testing.T) {
	store := newFakeStore()
	store.seedIntraday(heartRateSeries(9, 8, 120)...)

	assert.Empty(t, evaluateRule(t, store, intradayAnomaly))
}

func TestIntradayAnomaly_HighWhenFarAboveBand(t *testing.T) {
	store := newFakeStore()
	store.seedIntraday(heartRateSeries(30, 29, 200)...)

	drafts := evaluateRule(t, store, intradayAnomaly)
	require.Len(t, drafts, 1)
	assert.Equal(t, models.PriorityHigh, drafts[0].Priority)
}

func TestIntradayAnomaly_OneAlertPerMetricCarriesLastAnomaly(t *testing.T) {
	store := newFakeStore()
	start := refTS.Add(-60 * time.Minute)
	store.seedIntraday(minuteSeries(testUser, models.MetricSteps, start, 60, func(i int, _ time.Time) float64 {
		switch i {
		case 10:
			return 400
		case 40:
			return 380
		}
		return 20
	})...)
	store.seedIntraday(minuteSeries(testUser, models.MetricCalories, start, 60, func(i int, _ time.Time) float64 {
		if i == 30 {
			return 15
		}
		return 1.2
	})...)

	drafts := evaluateRule(t, store, intradayAnomaly)
	require.Len(t, drafts, 2)
	assert.Equal(t, models.AlertStepsAnomaly, drafts[0].Type)
	assert.Equal(t, 380.0, *drafts[0].TriggeringValue)
	assert.Equal(t, 2, drafts[0].Details.AnomalyCount)
	// μ-2σ is negative for this series; the band starts at 0
	assert.Equal(t, "0-165", drafts[0].ThresholdValue.Range)
	assert.Contains(t, drafts[0].Details.Message, "outside 0-165")
	assert.Equal(t, models.AlertCaloriesAnomaly, drafts[1].Type)
}

func TestIntradayAnomaly_ConstantSeriesSkips(t *testing.T) {
	store := newFakeStore()
	store.seedIntraday(minuteSeries(testUser, models.MetricActiveZoneMinutes, refTS.Add(-time.Hour), 60,
		func(int, time.Time) float64 { return 0 })...)

	assert.Empty(t, evaluateRule(t, store, intradayAnomaly))
}

func TestIntradayAnomaly_PointAtLowerBoundExcluded(t *testing.T) {
	store := newFakeStore()
	points := heartRateSeries(9, 8, 120)
	// exactly ref - 24h is outside (ref - 24h, ref]
	points = append(points, models.IntradayPoint{
		UserID: testUser, Timestamp: refTS.Add(-IntradayLookback), Metric: models.MetricHeartRate, Value: 60,
	})
	store.seedIntraday(points...)

	assert.Empty(t, evaluateRule(t, store, intradayAnomaly))
}

// ============================================
// intraday_activity_drop
// ============================================

func TestIntradayActivityDrop_SustainedInactivity(t *testing.T) {
	store := newFakeStore()
	dayStart := time.Date(2025, 5, 22, 6, 0, 0, 0, time.UTC)
	run := func(ts time.Time) bool {
		return !ts.Before(time.Date(2025, 5, 22, 9, 0, 0, 0, time.UTC)) &&
			ts.Before(time.Date(2025, 5, 22, 13, 30, 0, 0, time.UTC))
	}
	// 06:00-07:59 is zero too but outside the waking window
	store.seedIntraday(minuteSeries(testUser, models.MetricSteps, dayStart, 14*60, func(_ int, ts time.Time) float64 {
		if ts.Hour() < 8 || run(ts) {
			return 0
		}
		return 12
	})...)

	drafts := evaluateRule(t, store, inactivity)
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, models.AlertIntradayActivityDrop, d.Type)
	assert.Equal(t, models.PriorityHigh, d.Priority)
	assert.Equal(t, "09:00", d.Details.RunStart)
	assert.Equal(t, "13:30", d.Details.RunEnd)
	assert.Equal(t, 270, d.Details.RunMinutes)
	assert.Equal(t, 270.0, *d.TriggeringValue)
	assert.Equal(t, 60.0, *d.ThresholdValue.Number)
	assert.Contains(t, d.Details.Message, "09:00")
	assert.Contains(t, d.Details.Message, "13:30")
}

func TestIntradayActivityDrop_MediumRun(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2025, 5, 22, 10, 0, 0, 0, time.UTC)
	store.seedIntraday(minuteSeries(testUser, models.MetricSteps, start, 120, func(i int, _ time.Time) float64 {
		if i >= 30 && i < 90 {
			return 0
		}
		return 5
	})...)

	drafts := evaluateRule(t, store, inactivity)
	require.Len(t, drafts, 1)
	assert.Equal(t, models.PriorityMedium, drafts[0].Priority)
	assert.Equal(t, 60, drafts[0].Details.RunMinutes)
}

func TestIntradayActivityDrop_ShortRunOrGapDoesNotFire(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2025, 5, 22, 10, 0, 0, 0, time.UTC)
	points := minuteSeries(testUser, models.MetricSteps, start, 120, func(i int, _ time.Time) float64 {
		if i >= 20 && i < 100 {
			return 0
		}
		return 5
	})
	// drop minute 60 so the 80-minute run becomes two 40-minute runs
	points = append(points[:60], points[61:]...)
	store.seedIntraday(points...)

	assert.Empty(t, evaluateRule(t, store, inactivity))
}

func TestIntradayActivityDrop_NightRunIgnored(t *testing.T) {
	store := newFakeStore()
	start := time.Date(2025, 5, 21, 22, 0, 0, 0, time.UTC)
	store.seedIntraday(minuteSeries(testUser, models.MetricSteps, start, 10*60, func(int, time.Time) float64 { return 0 })...)

	assert.Empty(t, evaluateRule(t, store, inactivity))
}

func TestIntradayActivityDrop_UsesEngineLocation(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	store := newFakeStore()
	// 05:00-07:00 UTC is 07:00-09:00 in Rome (CEST); only 08:00-09:00 local is waking
	start := time.Date(2025, 5, 22, 5, 0, 0, 0, time.UTC)
	store.seedIntraday(minuteSeries(testUser, models.MetricSteps, start, 120, func(int, time.Time) float64 { return 0 })...)

	engine := NewEngine(store, zap.NewNop(), WithLocation(rome))
	drafts, err := NewIntradayActivityDropEvaluator(engine).Evaluate(context.Background(), engine.request(testUser, refTS))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "08:00", drafts[0].Details.RunStart)
	assert.Equal(t, "09:00", drafts[0].Details.RunEnd)
}

func TestLongestZeroRun_TieKeepsEarliest(t *testing.T) {
	start := time.Date(2025, 5, 22, 10, 0, 0, 0, time.UTC)
	points := minuteSeries(testUser, models.MetricSteps, start, 30, func(i int, _ time.Time) float64 {
		if i == 10 {
			return 3
		}
		if i < 10 || (i > 10 && i < 21) {
			return 0
		}
		return 1
	})

	run, ok := LongestZeroRun(points, time.UTC)
	require.True(t, ok)
	assert.Equal(t, start, run.Start)
	assert.Equal(t, 10*time.Minute, run.Duration())
}

// ============================================
// data_quality
// ============================================

func TestDataQuality_MissingCritical(t *testing.T) {
	store := newFakeStore()
	store.row(testUser, refDate, 0).SleepMinutes = models.Float(420)

	drafts := evaluateRule(t, store, dataQuality)
	require.Len(t, drafts, 2)
	for i, field := range []string{"steps", "heart_rate"} {
		assert.Equal(t, models.AlertDataQuality, drafts[i].Type)
		assert.Equal(t, models.PriorityMedium, drafts[i].Priority)
		assert.Nil(t, drafts[i].TriggeringValue)
		assert.True(t, drafts[i].ThresholdValue.IsNull())
		assert.Equal(t, field, drafts[i].Details.Metric)
		assert.Equal(t, "missing", drafts[i].Details.Issue)
	}
}

func TestDataQuality_OutOfRange(t *testing.T) {
	store := newFakeStore()
	row := store.row(testUser, refDate, 0)
	row.Steps = models.Float(60000)
	row.RestingHeartRate = models.Float(250)
	row.SleepMinutes = models.Float(420)
	row.SedentaryMinutes = models.Float(600)
	row.OxygenSaturation = models.Float(75)

	drafts := evaluateRule(t, store, dataQuality)
	require.Len(t, drafts, 3)

	assert.Equal(t, "steps", drafts[0].Details.Metric)
	assert.Equal(t, models.PriorityMedium, drafts[0].Priority)
	assert.Equal(t, "0-50000", drafts[0].ThresholdValue.Range)

	assert.Equal(t, "heart_rate", drafts[1].Details.Metric)
	assert.Equal(t, models.PriorityHigh, drafts[1].Priority)
	assert.Equal(t, "30-200", drafts[1].ThresholdValue.Range)
	assert.Equal(t, 250.0, *drafts[1].TriggeringValue)

	assert.Equal(t, "oxygen_saturation", drafts[2].Details.Metric)
	assert.Equal(t, models.PriorityHigh, drafts[2].Priority)
	assert.Equal(t, "80-100", drafts[2].ThresholdValue.Range)
}

func TestDataQuality_NoRowSkips(t *testing.T) {
	store := newFakeStore()
	store.row(testUser, refDate, 1).Steps = models.Float(5000)

	assert.Empty(t, evaluateRule(t, store, dataQuality))
}

func TestDataQuality_CleanRow(t *testing.T) {
	store := newFakeStore()
	row := store.row(testUser, refDate, 0)
	row.Steps = models.Float(0)
	row.RestingHeartRate = models.Float(30)
	row.SleepMinutes = models.Float(1440)

	assert.Empty(t, evaluateRule(t, store, dataQuality))
}
