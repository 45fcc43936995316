package evaluator

import (
	"math"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

// Bounds physiological range of a daily field.
type Bounds struct {
	Field    models.SummaryField
	Min, Max float64
	// Critical fields raise a data_quality alert when missing.
	Critical bool
	// OutOfRangePriority priority of the out-of-range data_quality alert.
	OutOfRangePriority models.Priority
}

// Contains reports whether v lies in [Min, Max].
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Threshold renders the range as "min-max".
func (b Bounds) Threshold() models.Threshold {
	return models.RangeThreshold(b.Min, b.Max)
}

var (
	StepsBounds = Bounds{
		Field: models.FieldSteps, Min: 0, Max: 50000,
		Critical: true, OutOfRangePriority: models.PriorityMedium,
	}
	RestingHeartRateBounds = Bounds{
		Field: models.FieldRestingHeartRate, Min: 30, Max: 200,
		Critical: true, OutOfRangePriority: models.PriorityHigh,
	}
	SleepMinutesBounds = Bounds{
		Field: models.FieldSleepMinutes, Min: 0, Max: 1440,
		Critical: true, OutOfRangePriority: models.PriorityMedium,
	}
	SedentaryMinutesBounds = Bounds{
		Field: models.FieldSedentaryMinutes, Min: 0, Max: 1440,
		OutOfRangePriority: models.PriorityMedium,
	}
	OxygenSaturationBounds = Bounds{
		Field: models.FieldOxygenSaturation, Min: 80, Max: 100,
		OutOfRangePriority: models.PriorityHigh,
	}
)

// QualityChecks fields validated by data_quality, in alert order.
var QualityChecks = []Bounds{
	StepsBounds,
	RestingHeartRateBounds,
	SleepMinutesBounds,
	SedentaryMinutesBounds,
	OxygenSaturationBounds,
}

// validSample drops negatives, non-finite values and values outside b.
func validSample(v *float64, b Bounds) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return 0, false
	}
	if !b.Contains(*v) {
		return 0, false
	}
	return *v, true
}

// validIntraday drops non-finite and negative samples.
func validIntraday(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
