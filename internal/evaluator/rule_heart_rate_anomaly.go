package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

const heartRateSigmas = 1.5

// HeartRateAnomalyEvaluator current resting heart rate against the prior 6 days.
type HeartRateAnomalyEvaluator struct {
	engine *Engine
}

// NewHeartRateAnomalyEvaluator creates the daily heart_rate_anomaly rule.
func NewHeartRateAnomalyEvaluator(engine *Engine) *HeartRateAnomalyEvaluator {
	return &HeartRateAnomalyEvaluator{engine: engine}
}

func (r *HeartRateAnomalyEvaluator) Name() string {
	return string(models.AlertHeartRateAnomaly)
}

// Evaluate fires when |c - μ| > 1.5·σ with σ > 0.
func (r *HeartRateAnomalyEvaluator) Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error) {
	base, ok, err := r.engine.dailyBaseline(ctx, r.Name(), req, HeartRateAnomalyWindow, RestingHeartRateBounds)
	if err != nil || !ok {
		return nil, err
	}
	if base.StdDev <= minStdDev {
		r.engine.skip(r.Name(), req, skipDegenerateBaseline)
		return nil, nil
	}

	limit := heartRateSigmas * base.StdDev
	if !(math.Abs(base.Current-base.Mean) > limit) {
		return nil, nil
	}

	threshold := base.Mean - limit
	if base.Current > base.Mean {
		threshold = base.Mean + limit
	}

	msg := fmt.Sprintf("Resting heart rate %.0f bpm outside %.1f ± %.1f bpm", base.Current, base.Mean, limit)
	details := dailyDetails(msg, models.FieldRestingHeartRate, base, HeartRateAnomalyWindow, req.ReferenceDate)
	std := base.StdDev
	details.StdDev = &std
	details.Threshold = &limit

	draft := NewAlertBuilder(req.UserID, req.ReferenceTS).Build(
		models.AlertHeartRateAnomaly,
		models.PriorityHigh,
		&base.Current,
		models.NumericThreshold(threshold),
		details,
	)
	return []models.AlertDraft{draft}, nil
}
