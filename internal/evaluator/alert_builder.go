package evaluator

import (
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

// AlertBuilder builds drafts for one (user, reference time) evaluation.
type AlertBuilder struct {
	userID      int64
	referenceTS time.Time
}

// NewAlertBuilder creates an alert builder.
func NewAlertBuilder(userID int64, referenceTS time.Time) *AlertBuilder {
	return &AlertBuilder{
		userID:      userID,
		referenceTS: referenceTS,
	}
}

// Build assembles a draft. triggering may be nil.
func (b *AlertBuilder) Build(
	alertType models.AlertType,
	priority models.Priority,
	triggering *float64,
	threshold models.Threshold,
	details models.AlertDetails,
) models.AlertDraft {
	if triggering != nil {
		v := *triggering
		triggering = &v
	}
	return models.AlertDraft{
		UserID:          b.userID,
		Type:            alertType,
		Priority:        priority,
		TriggeringValue: triggering,
		ThresholdValue:  threshold,
		Details:         details,
		ReferenceTime:   b.referenceTS,
	}
}

// dailyDetails fills the baseline fields shared by the daily relative-change rules.
func dailyDetails(message string, field models.SummaryField, base Baseline, w Window, refDate time.Time) models.AlertDetails {
	from, to := w.Range(refDate)
	mean := base.Mean
	return models.AlertDetails{
		Message:     message,
		Metric:      string(field),
		Mean:        &mean,
		SampleCount: base.Prior + 1,
		WindowStart: from.Format("2006-01-02"),
		WindowEnd:   to.Format("2006-01-02"),
	}
}
