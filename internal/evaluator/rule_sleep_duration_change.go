package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

const sleepChangeRatio = 0.25

// SleepDurationChangeEvaluator current-night sleep against the prior 4 nights.
type SleepDurationChangeEvaluator struct {
	engine *Engine
}

// NewSleepDurationChangeEvaluator creates the sleep_duration_change rule.
func NewSleepDurationChangeEvaluator(engine *Engine) *SleepDurationChangeEvaluator {
	return &SleepDurationChangeEvaluator{engine: engine}
}

func (r *SleepDurationChangeEvaluator) Name() string {
	return string(models.AlertSleepDurationChange)
}

// Evaluate fires when |c - μ| > 0.25·μ. The direction is carried in details.
func (r *SleepDurationChangeEvaluator) Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error) {
	base, ok, err := r.engine.dailyBaseline(ctx, r.Name(), req, SleepDurationChangeWindow, SleepMinutesBounds)
	if err != nil || !ok {
		return nil, err
	}
	if base.Mean <= 0 {
		r.engine.skip(r.Name(), req, skipNonPositiveMean)
		return nil, nil
	}

	if !(math.Abs(base.Current-base.Mean) > sleepChangeRatio*base.Mean) {
		return nil, nil
	}

	direction := "decrease"
	threshold := (1 - sleepChangeRatio) * base.Mean
	if base.Current > base.Mean {
		direction = "increase"
		threshold = (1 + sleepChangeRatio) * base.Mean
	}

	msg := fmt.Sprintf("Sleep %.0f min, a %s of more than 25%% from the %d-night mean %.0f min",
		base.Current, direction, base.Prior, base.Mean)
	details := dailyDetails(msg, models.FieldSleepMinutes, base, SleepDurationChangeWindow, req.ReferenceDate)
	details.Direction = direction

	draft := NewAlertBuilder(req.UserID, req.ReferenceTS).Build(
		models.AlertSleepDurationChange,
		models.PriorityMedium,
		&base.Current,
		models.NumericThreshold(threshold),
		details,
	)
	return []models.AlertDraft{draft}, nil
}
