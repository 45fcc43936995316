package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/observability"
	"go.uber.org/zap"
)

// Store typed access the engine needs. Failures wrap models.ErrStoreUnavailable.
type Store interface {
	DailySummaries(ctx context.Context, userID int64, from, to time.Time) ([]models.DailySummary, error)
	Intraday(ctx context.Context, userID int64, metric models.MetricType, from, to time.Time) ([]models.IntradayPoint, error)
	InsertAlert(ctx context.Context, draft models.AlertDraft) (int64, error)
}

// AlertSink receives the alerts persisted by one evaluation (cache, notifier).
type AlertSink interface {
	HandleAlerts(ctx context.Context, userID int64, alerts []models.Alert) error
}

// EvaluationError a fatal evaluation failure for one (user, reference time).
type EvaluationError struct {
	UserID      int64
	ReferenceTS time.Time
	Err         error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate user %d at %s: %v", e.UserID, e.ReferenceTS.Format(time.RFC3339), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Request one evaluation input.
type Request struct {
	UserID      int64
	ReferenceTS time.Time
	// ReferenceDate is the local calendar date of ReferenceTS, as midnight UTC.
	ReferenceDate time.Time
}

// RuleEvaluator one rule. It returns zero or more drafts; only store errors are returned.
type RuleEvaluator interface {
	Name() string
	Evaluate(ctx context.Context, req Request) ([]models.AlertDraft, error)
}

// Engine stateless rules processor.
type Engine struct {
	store    Store
	location *time.Location
	sinks    []AlertSink
	logger   *zap.Logger

	rules []RuleEvaluator
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the timezone used for reference dates and waking hours.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithSinks registers alert sinks.
func WithSinks(sinks ...AlertSink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// NewEngine creates the engine with the rules in their fixed order.
func NewEngine(store Store, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		location: time.UTC,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.rules = []RuleEvaluator{
		NewActivityDropEvaluator(e),
		NewSedentaryIncreaseEvaluator(e),
		NewSleepDurationChangeEvaluator(e),
		NewHeartRateAnomalyEvaluator(e),
		NewIntradayAnomalyEvaluator(e),
		NewIntradayActivityDropEvaluator(e),
		NewDataQualityEvaluator(e),
	}

	return e
}

// AddSink registers a sink after construction.
func (e *Engine) AddSink(sink AlertSink) {
	e.sinks = append(e.sinks, sink)
}

// Location timezone used for reference dates.
func (e *Engine) Location() *time.Location {
	return e.location
}

func (e *Engine) request(userID int64, referenceTS time.Time) Request {
	return Request{
		UserID:        userID,
		ReferenceTS:   referenceTS,
		ReferenceDate: models.DateOf(referenceTS.In(e.location)),
	}
}

// Evaluate runs every rule for (userID, referenceTS), persists the drafts in rule order
// and reports whether at least one alert was persisted.
func (e *Engine) Evaluate(ctx context.Context, userID int64, referenceTS time.Time) (bool, error) {
	alerts, err := e.Run(ctx, userID, referenceTS)
	if err != nil {
		return false, err
	}
	return len(alerts) > 0, nil
}

// Drafts runs every rule without persisting anything.
func (e *Engine) Drafts(ctx context.Context, userID int64, referenceTS time.Time) ([]models.AlertDraft, error) {
	req := e.request(userID, referenceTS)

	var drafts []models.AlertDraft
	for _, rule := range e.rules {
		ruleDrafts, err := rule.Evaluate(ctx, req)
		if err != nil {
			e.logger.Error("Rule evaluation aborted",
				zap.Int64("user_id", userID),
				zap.String("rule", rule.Name()),
				zap.Error(err),
			)
			return nil, &EvaluationError{
				UserID:      userID,
				ReferenceTS: referenceTS,
				Err:         fmt.Errorf("%s: %w", rule.Name(), err),
			}
		}
		drafts = append(drafts, ruleDrafts...)
	}

	return drafts, nil
}

// Run evaluates, persists and hands the persisted alerts to the sinks.
// Alerts inserted before a store failure are kept.
func (e *Engine) Run(ctx context.Context, userID int64, referenceTS time.Time) ([]models.Alert, error) {
	start := time.Now()

	drafts, err := e.Drafts(ctx, userID, referenceTS)
	if err != nil {
		observability.RecordEvaluation("failed", time.Since(start))
		return nil, err
	}

	alerts := make([]models.Alert, 0, len(drafts))
	for _, draft := range drafts {
		id, err := e.store.InsertAlert(ctx, draft)
		if err != nil {
			observability.RecordEvaluation("failed", time.Since(start))
			e.logger.Error("Failed to persist alert",
				zap.Int64("user_id", userID),
				zap.String("alert_type", string(draft.Type)),
				zap.Int("persisted", len(alerts)),
				zap.Error(err),
			)
			return nil, &EvaluationError{
				UserID:      userID,
				ReferenceTS: referenceTS,
				Err:         fmt.Errorf("insert %s: %w", draft.Type, err),
			}
		}

		observability.RecordAlert(string(draft.Type), string(draft.Priority))
		e.logger.Info("Alert created",
			zap.Int64("alert_id", id),
			zap.Int64("user_id", userID),
			zap.String("alert_type", string(draft.Type)),
			zap.String("priority", string(draft.Priority)),
		)
		alerts = append(alerts, models.Alert{
			ID:         id,
			AlertTime:  draft.ReferenceTime,
			AlertDraft: draft,
		})
	}

	if len(alerts) > 0 {
		observability.RecordEvaluation("alerted", time.Since(start))
		e.dispatch(ctx, userID, alerts)
	} else {
		observability.RecordEvaluation("quiet", time.Since(start))
	}

	return alerts, nil
}

func (e *Engine) dispatch(ctx context.Context, userID int64, alerts []models.Alert) {
	for _, sink := range e.sinks {
		if err := sink.HandleAlerts(ctx, userID, alerts); err != nil {
			e.logger.Warn("Alert sink failed",
				zap.Int64("user_id", userID),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Error(err),
			)
		}
	}
}

// skip logs and counts a silent rule skip.
func (e *Engine) skip(rule string, req Request, reason string, fields ...zap.Field) {
	observability.RecordRuleSkip(rule, reason)
	e.logger.Debug("Rule skipped",
		append([]zap.Field{
			zap.String("rule", rule),
			zap.Int64("user_id", req.UserID),
			zap.String("reference_date", req.ReferenceDate.Format("2006-01-02")),
			zap.String("reason", reason),
		}, fields...)...,
	)
}

const (
	skipInsufficientData   = "insufficient_data"
	skipDegenerateBaseline = "degenerate_baseline"
	skipNonPositiveMean    = "non_positive_mean"
	skipMissingRow         = "missing_row"
)

// minStdDev below this a baseline is degenerate.
const minStdDev = 1e-9

// dailyBaseline loads w's rows and builds the baseline for b.Field.
func (e *Engine) dailyBaseline(ctx context.Context, rule string, req Request, w Window, b Bounds) (Baseline, bool, error) {
	from, to := w.Range(req.ReferenceDate)
	rows, err := e.store.DailySummaries(ctx, req.UserID, from, to)
	if err != nil {
		return Baseline{}, false, err
	}

	series, ok := DailySeries(rows, b, req.ReferenceDate)
	if !ok || len(series) < w.MinSamples {
		e.skip(rule, req, skipInsufficientData, zap.Int("valid_samples", len(series)))
		return Baseline{}, false, nil
	}

	base, ok := ComputeBaseline(series)
	if !ok {
		e.skip(rule, req, skipInsufficientData, zap.Int("valid_samples", len(series)))
		return Baseline{}, false, nil
	}
	return base, true, nil
}
