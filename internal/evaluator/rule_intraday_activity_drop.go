package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

const (
	// WakingStart and WakingEnd bound the waking window in local time: [08:00, 22:00).
	WakingStart = 8 * time.Hour
	WakingEnd   = 22 * time.Hour

	// MinInactivityRun shortest zero-step run that raises an alert.
	MinInactivityRun = 60 * time.Minute
	// HighInactivityRun run length at which the alert is high priority.
	HighInactivityRun = 240 * time.Minute

	sampleInterval = time.Minute
)

// IntradayActivityDropEvaluator detects sustained inactivity during waking hours.
type IntradayActivityDropEvaluator struct {
	engine *Engine
}

// NewIntradayActivityDropEvaluator creates the intraday_activity_drop rule.
func NewIntradayActivityDropEvaluator(engine *Engine) *IntradayActivityDropEvaluator {
	return &IntradayActivityDropEvaluator{engine: engine}
}

func (r *IntradayActivityDropEvaluator) Name() string {
	return string(models.AlertIntradayActivityDrop)
}

// ZeroRun contiguous zero-step minutes; End is exclusive.
type ZeroRun struct {
	Start time.Time
	End   time.Time
}

// Duration run length.
func (z ZeroRun) Duration() time.Duration {
	return z.End.Sub(z.Start)
}

// Evaluate fires when the longest waking zero-step run is at least MinInactivityRun.
func (r *IntradayActivityDropEvaluator) Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error) {
	from, to := IntradayRange(req.ReferenceTS)
	points, err := r.engine.store.Intraday(ctx, req.UserID, models.MetricSteps, from, to)
	if err != nil {
		return nil, err
	}

	points = IntradaySeries(points, from)
	if len(points) < IntradayMinSamples {
		r.engine.skip(r.Name(), req, skipInsufficientData, zap.Int("valid_samples", len(points)))
		return nil, nil
	}

	run, ok := LongestZeroRun(points, r.engine.location)
	if !ok || run.Duration() < MinInactivityRun {
		return nil, nil
	}

	priority := models.PriorityMedium
	if run.Duration() >= HighInactivityRun {
		priority = models.PriorityHigh
	}

	loc := r.engine.location
	minutes := int(run.Duration() / time.Minute)
	startText := run.Start.In(loc).Format("15:04")
	endText := run.End.In(loc).Format("15:04")
	runMinutes := float64(minutes)

	details := models.AlertDetails{
		Message:     fmt.Sprintf("No steps from %s to %s (%d min)", startText, endText, minutes),
		Metric:      string(models.MetricSteps),
		RunStart:    startText,
		RunEnd:      endText,
		RunMinutes:  minutes,
		SampleCount: len(points),
		WindowStart: from.Format(time.RFC3339),
		WindowEnd:   to.Format(time.RFC3339),
	}

	draft := NewAlertBuilder(req.UserID, req.ReferenceTS).Build(
		models.AlertIntradayActivityDrop,
		priority,
		&runMinutes,
		models.NumericThreshold(MinInactivityRun.Minutes()),
		details,
	)
	return []models.AlertDraft{draft}, nil
}

// LongestZeroRun scans time-ordered step samples for the longest run of zero-step
// minutes inside the waking window. A gap between samples ends a run. Ties keep the earliest run.
func LongestZeroRun(points []models.IntradayPoint, loc *time.Location) (ZeroRun, bool) {
	var best, cur ZeroRun
	found, running := false, false
	var last time.Time

	for _, p := range points {
		if p.Value != 0 || !waking(p.Timestamp, loc) {
			running = false
			continue
		}

		switch {
		case running && p.Timestamp.Equal(last):
			continue
		case running && p.Timestamp.Sub(last) == sampleInterval:
			cur.End = p.Timestamp.Add(sampleInterval)
		default:
			cur = ZeroRun{Start: p.Timestamp, End: p.Timestamp.Add(sampleInterval)}
			running = true
		}
		last = p.Timestamp

		if !found || cur.Duration() > best.Duration() {
			best = cur
			found = true
		}
	}

	return best, found
}

func waking(ts time.Time, loc *time.Location) bool {
	local := ts.In(loc)
	offset := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute
	return offset >= WakingStart && offset < WakingEnd
}
