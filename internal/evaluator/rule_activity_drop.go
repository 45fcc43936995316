package evaluator

import (
	"context"
	"fmt"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

const (
	activityDropRatio     = 0.75
	activityDropHighRatio = 0.5
)

// ActivityDropEvaluator current-day steps against the prior 6 days.
type ActivityDropEvaluator struct {
	engine *Engine
}

// NewActivityDropEvaluator creates the activity_drop rule.
func NewActivityDropEvaluator(engine *Engine) *ActivityDropEvaluator {
	return &ActivityDropEvaluator{engine: engine}
}

func (r *ActivityDropEvaluator) Name() string {
	return string(models.AlertActivityDrop)
}

// Evaluate fires when c < 0.75·μ; high when c < 0.5·μ.
func (r *ActivityDropEvaluator) Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error) {
	base, ok, err := r.engine.dailyBaseline(ctx, r.Name(), req, ActivityDropWindow, StepsBounds)
	if err != nil || !ok {
		return nil, err
	}
	if base.Mean <= 0 {
		r.engine.skip(r.Name(), req, skipNonPositiveMean)
		return nil, nil
	}

	threshold := activityDropRatio * base.Mean
	if !(base.Current < threshold) {
		return nil, nil
	}

	priority := models.PriorityMedium
	if base.Current < activityDropHighRatio*base.Mean {
		priority = models.PriorityHigh
	}

	r.engine.logger.Debug("Activity drop detected",
		zap.Int64("user_id", req.UserID),
		zap.Float64("steps", base.Current),
		zap.Float64("mean", base.Mean),
	)

	msg := fmt.Sprintf("Steps %.0f below 75%% of the %d-day mean %.0f", base.Current, base.Prior, base.Mean)
	draft := NewAlertBuilder(req.UserID, req.ReferenceTS).Build(
		models.AlertActivityDrop,
		priority,
		&base.Current,
		models.NumericThreshold(threshold),
		dailyDetails(msg, models.FieldSteps, base, ActivityDropWindow, req.ReferenceDate),
	)
	return []models.AlertDraft{draft}, nil
}
