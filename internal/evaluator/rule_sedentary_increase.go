package evaluator

import (
	"context"
	"fmt"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

const (
	sedentaryIncreaseRatio     = 1.3
	sedentaryIncreaseHighRatio = 1.5
)

// SedentaryIncreaseEvaluator current-day sedentary minutes against the prior 2 days.
type SedentaryIncreaseEvaluator struct {
	engine *Engine
}

// NewSedentaryIncreaseEvaluator creates the sedentary_increase rule.
func NewSedentaryIncreaseEvaluator(engine *Engine) *SedentaryIncreaseEvaluator {
	return &SedentaryIncreaseEvaluator{engine: engine}
}

func (r *SedentaryIncreaseEvaluator) Name() string {
	return string(models.AlertSedentaryIncrease)
}

// Evaluate fires when c > 1.3·μ; high when c > 1.5·μ.
func (r *SedentaryIncreaseEvaluator) Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error) {
	base, ok, err := r.engine.dailyBaseline(ctx, r.Name(), req, SedentaryIncreaseWindow, SedentaryMinutesBounds)
	if err != nil || !ok {
		return nil, err
	}
	if base.Mean <= 0 {
		r.engine.skip(r.Name(), req, skipNonPositiveMean)
		return nil, nil
	}

	threshold := sedentaryIncreaseRatio * base.Mean
	if !(base.Current > threshold) {
		return nil, nil
	}

	priority := models.PriorityMedium
	if base.Current > sedentaryIncreaseHighRatio*base.Mean {
		priority = models.PriorityHigh
	}

	msg := fmt.Sprintf("Sedentary time %.0f min above 130%% of the %d-day mean %.0f min", base.Current, base.Prior, base.Mean)
	draft := NewAlertBuilder(req.UserID, req.ReferenceTS).Build(
		models.AlertSedentaryIncrease,
		priority,
		&base.Current,
		models.NumericThreshold(threshold),
		dailyDetails(msg, models.FieldSedentaryMinutes, base, SedentaryIncreaseWindow, req.ReferenceDate),
	)
	return []models.AlertDraft{draft}, nil
}
