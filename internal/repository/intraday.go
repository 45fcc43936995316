package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

// IntradayRepository intraday_metrics access (append-only).
type IntradayRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIntradayRepository creates the repository.
func NewIntradayRepository(db *sql.DB, logger *zap.Logger) *IntradayRepository {
	return &IntradayRepository{
		db:     db,
		logger: logger,
	}
}

// Intraday returns samples of metric for userID with from <= time <= to, ascending by time.
func (r *IntradayRepository) Intraday(ctx context.Context, userID int64, metric models.MetricType, from, to time.Time) ([]models.IntradayPoint, error) {
	query := `
		SELECT time, value
		FROM intraday_metrics
		WHERE user_id = $1
		  AND type = $2
		  AND time >= $3
		  AND time <= $4
		ORDER BY time ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, string(metric), from, to)
	if err != nil {
		return nil, unavailable("query intraday metrics", err)
	}
	defer rows.Close()

	var points []models.IntradayPoint
	dropped := 0
	for rows.Next() {
		var ts time.Time
		var value sql.NullFloat64
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, unavailable("scan intraday metric", err)
		}
		if !value.Valid || !finite(value.Float64) {
			dropped++
			continue
		}
		points = append(points, models.IntradayPoint{
			UserID:    userID,
			Timestamp: ts,
			Metric:    metric,
			Value:     value.Float64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate intraday metrics", err)
	}

	if dropped > 0 {
		r.logger.Warn("Non-numeric intraday values treated as null",
			zap.Int64("user_id", userID),
			zap.String("metric_type", string(metric)),
			zap.Int("dropped", dropped),
		)
	}

	return points, nil
}

// InsertIntradayPoints appends points in one transaction.
func (r *IntradayRepository) InsertIntradayPoints(ctx context.Context, points []models.IntradayPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin intraday insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO intraday_metrics (user_id, time, type, value)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return unavailable("prepare intraday insert", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if !p.Metric.Valid() {
			return fmt.Errorf("invalid metric type %q", p.Metric)
		}
		if _, err := stmt.ExecContext(ctx, p.UserID, p.Timestamp, string(p.Metric), p.Value); err != nil {
			return unavailable("insert intraday metric", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit intraday insert", err)
	}
	return nil
}
