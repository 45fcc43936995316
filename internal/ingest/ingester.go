package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/consumer"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

// ErrNoTokens the user never authorised the application.
var ErrNoTokens = errors.New("user has no fitbit tokens")

// Store persistence the ingester writes to.
type Store interface {
	UpsertDailySummary(ctx context.Context, s models.DailySummary) error
	Intraday(ctx context.Context, userID int64, metric models.MetricType, from, to time.Time) ([]models.IntradayPoint, error)
	InsertIntradayPoints(ctx context.Context, points []models.IntradayPoint) error
	SleepLogs(ctx context.Context, userID int64, from, to time.Time) ([]models.SleepLog, error)
	InsertSleepLog(ctx context.Context, log *models.SleepLog) error
	UpdateTokens(ctx context.Context, userID int64, accessToken, refreshToken string) error
}

// Source Fitbit data source.
type Source interface {
	RefreshTokens(ctx context.Context, refreshToken string) (Tokens, error)
	DailySummary(ctx context.Context, accessToken string, userID int64, date time.Time) (models.DailySummary, error)
	SleepLogs(ctx context.Context, accessToken string, userID int64, date time.Time) ([]models.SleepLog, error)
	Intraday(ctx context.Context, accessToken string, userID int64, metric models.MetricType, date time.Time) ([]models.IntradayPoint, error)
}

// EvaluationPublisher queues an evaluation once a user's data is stored.
type EvaluationPublisher interface {
	PublishEvaluation(ctx context.Context, req consumer.EvaluationRequest) error
}

// Result what one ingestion stored.
type Result struct {
	UserID         int64
	Date           time.Time
	IntradayPoints int
	SleepLogs      int
	ReferenceTS    time.Time
}

// Ingester pulls one day of Fitbit data per user into the store.
type Ingester struct {
	source    Source
	store     Store
	publisher EvaluationPublisher
	location  *time.Location
	logger    *zap.Logger

	now func() time.Time
}

// NewIngester creates an ingester; publisher may be nil.
func NewIngester(source Source, store Store, publisher EvaluationPublisher, location *time.Location, logger *zap.Logger) *Ingester {
	if location == nil {
		location = time.UTC
	}
	return &Ingester{
		source:    source,
		store:     store,
		publisher: publisher,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
}

// IngestUser stores date's summary, sleep sessions and intraday series for user and
// queues an evaluation. An expired access token is refreshed once and persisted.
func (i *Ingester) IngestUser(ctx context.Context, user models.User, date time.Time) (Result, error) {
	if user.AccessToken == nil || *user.AccessToken == "" {
		return Result{}, fmt.Errorf("user %d: %w", user.ID, ErrNoTokens)
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, i.location)
	token := *user.AccessToken

	result, err := i.ingest(ctx, token, user.ID, day)
	if errors.Is(err, ErrTokenExpired) {
		if user.RefreshToken == nil || *user.RefreshToken == "" {
			return Result{}, fmt.Errorf("user %d: %w", user.ID, ErrNoTokens)
		}
		i.logger.Info("Refreshing fitbit token", zap.Int64("user_id", user.ID))

		tokens, rerr := i.source.RefreshTokens(ctx, *user.RefreshToken)
		if rerr != nil {
			return Result{}, fmt.Errorf("user %d: %w", user.ID, rerr)
		}
		if rerr = i.store.UpdateTokens(ctx, user.ID, tokens.AccessToken, tokens.RefreshToken); rerr != nil {
			return Result{}, fmt.Errorf("user %d: failed to store refreshed tokens: %w", user.ID, rerr)
		}
		result, err = i.ingest(ctx, tokens.AccessToken, user.ID, day)
	}
	if err != nil {
		return Result{}, fmt.Errorf("user %d: %w", user.ID, err)
	}

	if i.publisher != nil {
		if err := i.publisher.PublishEvaluation(ctx, consumer.EvaluationRequest{UserID: user.ID, ReferenceTS: result.ReferenceTS}); err != nil {
			// data is stored; the scheduler will pick the user up on its next pass
			i.logger.Warn("Failed to queue evaluation",
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	i.logger.Info("Fitbit data ingested",
		zap.Int64("user_id", user.ID),
		zap.String("date", day.Format(dateLayout)),
		zap.Int("intraday_points", result.IntradayPoints),
		zap.Int("sleep_logs", result.SleepLogs),
	)
	return result, nil
}

func (i *Ingester) ingest(ctx context.Context, token string, userID int64, day time.Time) (Result, error) {
	result := Result{UserID: userID, Date: models.DateOf(day), ReferenceTS: i.referenceTS(day)}

	summary, err := i.source.DailySummary(ctx, token, userID, day)
	if err != nil {
		return result, err
	}
	if err := i.store.UpsertDailySummary(ctx, summary); err != nil {
		return result, err
	}

	logs, err := i.source.SleepLogs(ctx, token, userID, day)
	if err != nil {
		return result, err
	}
	stored, err := i.newSleepLogs(ctx, userID, day, logs)
	if err != nil {
		return result, err
	}
	for idx := range stored {
		if err := i.store.InsertSleepLog(ctx, &stored[idx]); err != nil {
			return result, err
		}
	}
	result.SleepLogs = len(stored)

	// Intraday reads are inclusive; stop short of the next day's first sample
	dayEnd := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	for _, metric := range IntradayMetrics {
		points, err := i.source.Intraday(ctx, token, userID, metric, day)
		if err != nil {
			return result, err
		}

		existing, err := i.store.Intraday(ctx, userID, metric, day, dayEnd)
		if err != nil {
			return result, err
		}
		fresh := missingPoints(points, existing)
		if err := i.store.InsertIntradayPoints(ctx, fresh); err != nil {
			return result, err
		}
		result.IntradayPoints += len(fresh)
	}

	return result, nil
}

// newSleepLogs drops sessions already stored with the same start time.
func (i *Ingester) newSleepLogs(ctx context.Context, userID int64, day time.Time, logs []models.SleepLog) ([]models.SleepLog, error) {
	if len(logs) == 0 {
		return nil, nil
	}
	existing, err := i.store.SleepLogs(ctx, userID, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	fresh := make([]models.SleepLog, 0, len(logs))
	for _, log := range logs {
		duplicate := false
		for _, e := range existing {
			if e.StartTime.Equal(log.StartTime) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			fresh = append(fresh, log)
		}
	}
	return fresh, nil
}

// missingPoints drops the points whose timestamp is already stored.
func missingPoints(points, existing []models.IntradayPoint) []models.IntradayPoint {
	if len(existing) == 0 {
		return points
	}
	stored := make(map[int64]struct{}, len(existing))
	for _, p := range existing {
		stored[p.Timestamp.UnixNano()] = struct{}{}
	}

	fresh := make([]models.IntradayPoint, 0, len(points))
	for _, p := range points {
		if _, ok := stored[p.Timestamp.UnixNano()]; !ok {
			fresh = append(fresh, p)
		}
	}
	return fresh
}

// referenceTS evaluates a past day at its last minute and the current day at now.
func (i *Ingester) referenceTS(day time.Time) time.Time {
	now := i.now().In(i.location)
	endOfDay := day.AddDate(0, 0, 1).Add(-time.Minute)
	if now.Before(endOfDay) {
		return now
	}
	return endOfDay
}

// UserLister lists the users to ingest.
type UserLister interface {
	ListCurrentUsers(ctx context.Context) ([]models.User, error)
}

// IngestAll ingests date for every current user. Per-user failures are logged and counted.
func (i *Ingester) IngestAll(ctx context.Context, users UserLister, date time.Time) ([]Result, int, error) {
	list, err := users.ListCurrentUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	var (
		results []Result
		failed  int
	)
	for _, user := range list {
		if ctx.Err() != nil {
			return results, failed, ctx.Err()
		}
		result, err := i.IngestUser(ctx, user, date)
		if err != nil {
			failed++
			i.logger.Error("Failed to ingest user",
				zap.Int64("user_id", user.ID),
				zap.String("email", user.Email),
				zap.Error(err),
			)
			continue
		}
		results = append(results, result)
	}
	return results, failed, nil
}
