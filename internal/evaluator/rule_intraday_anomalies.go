package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

const (
	intradaySigmas        = 2.0
	intradayHighUpperGain = 1.2
	intradayHighLowerGain = 0.8
)

// intradayAnomalyTypes metric → alert type, in evaluation order.
var intradayAnomalyTypes = []struct {
	Metric models.MetricType
	Type   models.AlertType
}{
	{models.MetricHeartRate, models.AlertHeartRateAnomalyIntraday},
	{models.MetricSteps, models.AlertStepsAnomaly},
	{models.MetricActiveZoneMinutes, models.AlertActiveZoneMinutesAnomaly},
	{models.MetricCalories, models.AlertCaloriesAnomaly},
}

// IntradayAnomalyEvaluator flags minute samples outside μ ± 2σ of the last 24 hours.
type IntradayAnomalyEvaluator struct {
	engine *Engine
}

// NewIntradayAnomalyEvaluator creates the intraday anomaly rule.
func NewIntradayAnomalyEvaluator(engine *Engine) *IntradayAnomalyEvaluator {
	return &IntradayAnomalyEvaluator{engine: engine}
}

func (r *IntradayAnomalyEvaluator) Name() string {
	return "intraday_anomalies"
}

// Evaluate emits at most one alert per metric.
func (r *IntradayAnomalyEvaluator) Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error) {
	from, to := IntradayRange(req.ReferenceTS)

	var drafts []models.AlertDraft
	for _, m := range intradayAnomalyTypes {
		points, err := r.engine.store.Intraday(ctx, req.UserID, m.Metric, from, to)
		if err != nil {
			return nil, err
		}
		if draft, ok := r.evaluateMetric(req, m.Metric, m.Type, IntradaySeries(points, from), from, to); ok {
			drafts = append(drafts, draft)
		}
	}
	return drafts, nil
}

func (r *IntradayAnomalyEvaluator) evaluateMetric(
	req Request,
	metric models.MetricType,
	alertType models.AlertType,
	points []models.IntradayPoint,
	from, to time.Time,
) (models.AlertDraft, bool) {
	if len(points) < IntradayMinSamples {
		r.engine.skip(r.Name(), req, skipInsufficientData,
			zap.String("metric_type", string(metric)),
			zap.Int("valid_samples", len(points)),
		)
		return models.AlertDraft{}, false
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	mean, std := Stats(values)
	if std <= minStdDev {
		r.engine.skip(r.Name(), req, skipDegenerateBaseline, zap.String("metric_type", string(metric)))
		return models.AlertDraft{}, false
	}

	low := mean - intradaySigmas*std
	high := mean + intradaySigmas*std

	anomalies := 0
	severe := false
	var last float64
	for _, v := range values {
		if v >= low && v <= high {
			continue
		}
		anomalies++
		last = v
		if v > intradayHighUpperGain*high || v < intradayHighLowerGain*low {
			severe = true
		}
	}
	if anomalies == 0 {
		return models.AlertDraft{}, false
	}

	priority := models.PriorityMedium
	if severe {
		priority = models.PriorityHigh
	}

	// samples are never negative; a band edge below 0 is reported as 0
	bandLow := math.Max(low, 0)
	m, s := mean, std
	details := models.AlertDetails{
		Message: fmt.Sprintf("%d %s samples outside %.0f-%.0f in the last 24h",
			anomalies, metric, bandLow, high),
		Metric:       string(metric),
		Mean:         &m,
		StdDev:       &s,
		SampleCount:  len(values),
		AnomalyCount: anomalies,
		WindowStart:  from.Format(time.RFC3339),
		WindowEnd:    to.Format(time.RFC3339),
	}

	return NewAlertBuilder(req.UserID, req.ReferenceTS).Build(
		alertType,
		priority,
		&last,
		models.RangeThreshold(bandLow, high),
		details,
	), true
}
