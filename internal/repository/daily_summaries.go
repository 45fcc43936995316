package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

// DailySummaryRepository daily_summaries access.
type DailySummaryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDailySummaryRepository creates the repository.
func NewDailySummaryRepository(db *sql.DB, logger *zap.Logger) *DailySummaryRepository {
	return &DailySummaryRepository{
		db:     db,
		logger: logger,
	}
}

var (
	summaryColumnList = func() string {
		cols := make([]string, 0, len(models.SummaryColumns))
		for _, c := range models.SummaryColumns {
			cols = append(cols, c.Column)
		}
		return strings.Join(cols, ", ")
	}()

	upsertSummaryQuery = func() string {
		placeholders := make([]string, 0, len(models.SummaryColumns)+2)
		updates := make([]string, 0, len(models.SummaryColumns))
		placeholders = append(placeholders, "$1", "$2")
		for i, c := range models.SummaryColumns {
			placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c.Column, c.Column))
		}
		return fmt.Sprintf(`
		INSERT INTO daily_summaries (user_id, date, %s)
		VALUES (%s)
		ON CONFLICT (user_id, date) DO UPDATE SET
			%s
	`, summaryColumnList, strings.Join(placeholders, ", "), strings.Join(updates, ",\n\t\t\t"))
	}()
)

// DailySummaries returns rows for userID with from <= date <= to, ascending by date.
// Non-finite numeric values are returned as null.
func (r *DailySummaryRepository) DailySummaries(ctx context.Context, userID int64, from, to time.Time) ([]models.DailySummary, error) {
	query := fmt.Sprintf(`
		SELECT user_id, date, %s
		FROM daily_summaries
		WHERE user_id = $1
		  AND date >= $2::date
		  AND date <= $3::date
		ORDER BY date ASC
	`, summaryColumnList)

	rows, err := r.db.QueryContext(ctx, query, userID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, unavailable("query daily summaries", err)
	}
	defer rows.Close()

	malformed := map[string]bool{}
	var summaries []models.DailySummary
	for rows.Next() {
		var s models.DailySummary
		values := make([]sql.NullFloat64, len(models.SummaryColumns))
		dest := make([]interface{}, 0, len(values)+2)
		dest = append(dest, &s.UserID, &s.Date)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, unavailable("scan daily summary", err)
		}

		s.Date = models.DateOf(s.Date)
		for i, c := range models.SummaryColumns {
			if !values[i].Valid {
				continue
			}
			if !finite(values[i].Float64) {
				if !malformed[c.Column] {
					malformed[c.Column] = true
					r.logger.Warn("Non-numeric daily summary value treated as null",
						zap.Int64("user_id", userID),
						zap.String("column", c.Column),
						zap.String("date", formatDate(s.Date)),
					)
				}
				continue
			}
			v := values[i].Float64
			*c.Ref(&s) = &v
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate daily summaries", err)
	}

	return summaries, nil
}

// UpsertDailySummary inserts or replaces the (user_id, date) row.
func (r *DailySummaryRepository) UpsertDailySummary(ctx context.Context, s models.DailySummary) error {
	if s.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if s.Date.IsZero() {
		return fmt.Errorf("date is required")
	}

	args := make([]interface{}, 0, len(models.SummaryColumns)+2)
	args = append(args, s.UserID, formatDate(s.Date))
	for _, c := range models.SummaryColumns {
		if v := *c.Ref(&s); v != nil {
			args = append(args, *v)
		} else {
			args = append(args, nil)
		}
	}

	if _, err := r.db.ExecContext(ctx, upsertSummaryQuery, args...); err != nil {
		return unavailable("upsert daily summary", err)
	}
	return nil
}
