package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

// DataQualityEvaluator validates the reference day's summary row.
type DataQualityEvaluator struct {
	engine *Engine
}

// NewDataQualityEvaluator creates the data_quality rule.
func NewDataQualityEvaluator(engine *Engine) *DataQualityEvaluator {
	return &DataQualityEvaluator{engine: engine}
}

func (r *DataQualityEvaluator) Name() string {
	return string(models.AlertDataQuality)
}

// Evaluate emits one alert per missing critical field and per out-of-range field.
func (r *DataQualityEvaluator) Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error) {
	from, to := DataQualityWindow.Range(req.ReferenceDate)
	rows, err := r.engine.store.DailySummaries(ctx, req.UserID, from, to)
	if err != nil {
		return nil, err
	}

	var row *models.DailySummary
	for i := range rows {
		if models.DateOf(rows[i].Date).Equal(to) {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		r.engine.skip(r.Name(), req, skipMissingRow)
		return nil, nil
	}

	builder := NewAlertBuilder(req.UserID, req.ReferenceTS)
	var drafts []models.AlertDraft
	for _, check := range QualityChecks {
		v := row.Value(check.Field)
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			v = nil
		}

		if v == nil {
			if !check.Critical {
				continue
			}
			drafts = append(drafts, builder.Build(
				models.AlertDataQuality,
				models.PriorityMedium,
				nil,
				models.Threshold{},
				models.AlertDetails{
					Message: fmt.Sprintf("Missing %s for %s", check.Field, to.Format("2006-01-02")),
					Metric:  string(check.Field),
					Issue:   "missing",
				},
			))
			continue
		}

		if check.Contains(*v) {
			continue
		}
		drafts = append(drafts, builder.Build(
			models.AlertDataQuality,
			check.OutOfRangePriority,
			v,
			check.Threshold(),
			models.AlertDetails{
				Message: fmt.Sprintf("%s %.0f outside %s", check.Field, *v, check.Threshold()),
				Metric:  string(check.Field),
				Issue:   "out_of_range",
			},
		))
	}

	return drafts, nil
}
