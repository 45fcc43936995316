package evaluator

import (
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

// Window lookback of one rule, ending at the reference date (inclusive).
type Window struct {
	Days       int
	MinSamples int
}

var (
	ActivityDropWindow        = Window{Days: 7, MinSamples: 2}
	SedentaryIncreaseWindow   = Window{Days: 3, MinSamples: 2}
	SleepDurationChangeWindow = Window{Days: 5, MinSamples: 3}
	HeartRateAnomalyWindow    = Window{Days: 7, MinSamples: 2}
	DataQualityWindow         = Window{Days: 1, MinSamples: 1}
)

const (
	// IntradayLookback intraday rules read (ref_ts - 24h, ref_ts].
	IntradayLookback = 24 * time.Hour
	// IntradayMinSamples minimum valid points per metric.
	IntradayMinSamples = 10
)

// Range returns the inclusive [from, to] dates of w ending at refDate.
func (w Window) Range(refDate time.Time) (from, to time.Time) {
	to = models.DateOf(refDate)
	from = to.AddDate(0, 0, -(w.Days - 1))
	return from, to
}

// IntradayRange returns the query bounds for the intraday lookback.
// The lower bound is exclusive; callers drop points at exactly from.
func IntradayRange(refTS time.Time) (from, to time.Time) {
	return refTS.Add(-IntradayLookback), refTS
}

// DailySeries returns the valid values of field from rows: every earlier date's
// valid value in date order, followed by the reference date's value as the last element.
// ok is false when the reference date has no valid value.
func DailySeries(rows []models.DailySummary, b Bounds, refDate time.Time) (series []float64, ok bool) {
	refDate = models.DateOf(refDate)

	var current float64
	for _, row := range rows {
		v, valid := validSample(row.Value(b.Field), b)
		if !valid {
			continue
		}
		day := models.DateOf(row.Date)
		switch {
		case day.Equal(refDate):
			current, ok = v, true
		case day.Before(refDate):
			series = append(series, v)
		}
	}
	if !ok {
		return nil, false
	}
	return append(series, current), true
}

// IntradaySeries keeps valid points strictly after from.
func IntradaySeries(points []models.IntradayPoint, from time.Time) []models.IntradayPoint {
	kept := make([]models.IntradayPoint, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.After(from) || !validIntraday(p.Value) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
