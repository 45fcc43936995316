package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

// SleepLogRepository sleep_logs access (append-only).
type SleepLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSleepLogRepository creates the repository.
func NewSleepLogRepository(db *sql.DB, logger *zap.Logger) *SleepLogRepository {
	return &SleepLogRepository{
		db:     db,
		logger: logger,
	}
}

// InsertSleepLog appends one sleep session.
func (r *SleepLogRepository) InsertSleepLog(ctx context.Context, log *models.SleepLog) error {
	if log.EndTime.Before(log.StartTime) {
		return fmt.Errorf("sleep session ends before it starts")
	}

	query := `
		INSERT INTO sleep_logs (
			user_id, start_time, end_time, duration_ms, efficiency,
			minutes_asleep, minutes_awake, minutes_in_rem, minutes_in_light, minutes_in_deep
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		log.UserID,
		log.StartTime,
		log.EndTime,
		nullableInt64(log.DurationMs),
		nullableInt(log.Efficiency),
		nullableInt(log.MinutesAsleep),
		nullableInt(log.MinutesAwake),
		nullableInt(log.MinutesREM),
		nullableInt(log.MinutesLight),
		nullableInt(log.MinutesDeep),
	).Scan(&log.ID)
	if err != nil {
		return unavailable("insert sleep log", err)
	}
	return nil
}

// SleepLogs returns sessions starting within [from, to], ascending by start time.
func (r *SleepLogRepository) SleepLogs(ctx context.Context, userID int64, from, to time.Time) ([]models.SleepLog, error) {
	query := `
		SELECT id, user_id, start_time, end_time, duration_ms, efficiency,
		       minutes_asleep, minutes_awake, minutes_in_rem, minutes_in_light, minutes_in_deep
		FROM sleep_logs
		WHERE user_id = $1
		  AND start_time >= $2
		  AND start_time <= $3
		ORDER BY start_time ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, unavailable("query sleep logs", err)
	}
	defer rows.Close()

	logs := []models.SleepLog{}
	for rows.Next() {
		var log models.SleepLog
		var duration sql.NullInt64
		var efficiency, asleep, awake, rem, light, deep sql.NullInt64
		if err := rows.Scan(
			&log.ID, &log.UserID, &log.StartTime, &log.EndTime, &duration, &efficiency,
			&asleep, &awake, &rem, &light, &deep,
		); err != nil {
			return nil, unavailable("scan sleep log", err)
		}
		if duration.Valid {
			v := duration.Int64
			log.DurationMs = &v
		}
		log.Efficiency = intPtr(efficiency)
		log.MinutesAsleep = intPtr(asleep)
		log.MinutesAwake = intPtr(awake)
		log.MinutesREM = intPtr(rem)
		log.MinutesLight = intPtr(light)
		log.MinutesDeep = intPtr(deep)
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sleep logs", err)
	}

	return logs, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
