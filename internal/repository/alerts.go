package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

// AlertsRepository alerts table access.
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewAlertsRepository creates the repository.
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// AlertFilters ListAlerts filters; nil/empty fields are ignored.
type AlertFilters struct {
	UserID       *int64
	From         *time.Time
	To           *time.Time
	Types        []models.AlertType
	Priorities   []models.Priority
	Acknowledged *bool
	Limit        int
}

const alertColumns = `
	id,
	alert_time,
	user_id,
	alert_type,
	priority,
	triggering_value,
	threshold_value,
	details,
	acknowledged,
	acknowledged_at,
	acknowledged_by
`

// InsertAlert appends one alert and returns its id. alert_time is the draft's reference time.
func (r *AlertsRepository) InsertAlert(ctx context.Context, draft models.AlertDraft) (int64, error) {
	if !draft.Type.Valid() {
		return 0, fmt.Errorf("invalid alert type %q", draft.Type)
	}
	if !draft.Priority.Valid() {
		return 0, fmt.Errorf("invalid priority %q", draft.Priority)
	}

	details, err := json.Marshal(draft.Details)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alert details: %w", err)
	}

	alertTime := draft.ReferenceTime
	if alertTime.IsZero() {
		alertTime = r.now()
	}

	query := `
		INSERT INTO alerts (
			alert_time, user_id, alert_type, priority,
			triggering_value, threshold_value, details, acknowledged
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING id
	`

	var triggering interface{}
	if draft.TriggeringValue != nil {
		triggering = *draft.TriggeringValue
	}

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		alertTime,
		draft.UserID,
		string(draft.Type),
		string(draft.Priority),
		triggering,
		draft.ThresholdValue,
		string(details),
	).Scan(&id)
	if err != nil {
		return 0, unavailable("insert alert", err)
	}

	return id, nil
}

// GetAlert returns one alert by id.
func (r *AlertsRepository) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE id = $1`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, unavailable("get alert", err)
	}
	return alert, nil
}

func (r *AlertsRepository) buildWhereClause(filters AlertFilters, args *[]interface{}, argN *int) []string {
	where := []string{}

	if filters.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", *argN))
		*args = append(*args, *filters.UserID)
		*argN++
	}
	if filters.From != nil {
		where = append(where, fmt.Sprintf("alert_time >= $%d", *argN))
		*args = append(*args, *filters.From)
		*argN++
	}
	if filters.To != nil {
		where = append(where, fmt.Sprintf("alert_time <= $%d", *argN))
		*args = append(*args, *filters.To)
		*argN++
	}
	if len(filters.Types) > 0 {
		types := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			types[i] = string(t)
		}
		where = append(where, fmt.Sprintf("alert_type = ANY($%d)", *argN))
		*args = append(*args, pq.Array(types))
		*argN++
	}
	if len(filters.Priorities) > 0 {
		priorities := make([]string, len(filters.Priorities))
		for i, p := range filters.Priorities {
			priorities[i] = string(p)
		}
		where = append(where, fmt.Sprintf("priority = ANY($%d)", *argN))
		*args = append(*args, pq.Array(priorities))
		*argN++
	}
	if filters.Acknowledged != nil {
		where = append(where, fmt.Sprintf("acknowledged = $%d", *argN))
		*args = append(*args, *filters.Acknowledged)
		*argN++
	}

	return where
}

// ListAlerts returns alerts matching filters, newest first.
func (r *AlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters) ([]models.Alert, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	limitClause := ""
	if filters.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT $%d", argN)
		args = append(args, filters.Limit)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		%s
		ORDER BY alert_time DESC, id DESC
		%s
	`, alertColumns, whereClause, limitClause)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query alerts", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, unavailable("scan alert", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate alerts", err)
	}

	return alerts, nil
}

// ListUnacknowledged returns the user's alerts still in the created state, newest first.
func (r *AlertsRepository) ListUnacknowledged(ctx context.Context, userID int64) ([]models.Alert, error) {
	acknowledged := false
	return r.ListAlerts(ctx, AlertFilters{
		UserID:       &userID,
		Acknowledged: &acknowledged,
	})
}

// AcknowledgeAlert moves an alert to acknowledged, binding operator and time. Allowed once.
func (r *AlertsRepository) AcknowledgeAlert(ctx context.Context, id, operatorID int64) (*models.Alert, error) {
	query := fmt.Sprintf(`
		UPDATE alerts
		SET acknowledged = TRUE,
		    acknowledged_at = $1,
		    acknowledged_by = $2
		WHERE id = $3
		  AND acknowledged = FALSE
		RETURNING %s
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, r.now(), operatorID, id))
	if err == nil {
		return alert, nil
	}
	if err != sql.ErrNoRows {
		return nil, unavailable("acknowledge alert", err)
	}

	// no row updated: unknown id or already acknowledged
	var acknowledged bool
	err = r.db.QueryRowContext(ctx, `SELECT acknowledged FROM alerts WHERE id = $1`, id).Scan(&acknowledged)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, unavailable("check alert", err)
	}
	return nil, ErrAlreadyAcknowledged
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var alertType, priority string
	var triggering sql.NullFloat64
	var threshold sql.NullString
	var details []byte
	var ackAt sql.NullTime
	var ackBy sql.NullInt64

	err := row.Scan(
		&alert.ID,
		&alert.AlertTime,
		&alert.UserID,
		&alertType,
		&priority,
		&triggering,
		&threshold,
		&details,
		&alert.Acknowledged,
		&ackAt,
		&ackBy,
	)
	if err != nil {
		return nil, err
	}

	alert.Type = models.AlertType(alertType)
	alert.Priority = models.Priority(priority)
	alert.ReferenceTime = alert.AlertTime
	if triggering.Valid && finite(triggering.Float64) {
		v := triggering.Float64
		alert.TriggeringValue = &v
	}
	if threshold.Valid {
		alert.ThresholdValue = models.ParseThreshold(threshold.String)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &alert.Details); err != nil {
			// legacy rows carry plain-text details
			var text string
			if json.Unmarshal(details, &text) == nil && text != "" {
				alert.Details = models.AlertDetails{Message: text}
			} else {
				alert.Details = models.AlertDetails{Message: string(details)}
			}
		}
	}
	if ackAt.Valid {
		t := ackAt.Time
		alert.AcknowledgedAt = &t
	}
	if ackBy.Valid {
		v := ackBy.Int64
		alert.AcknowledgedBy = &v
	}

	return &alert, nil
}
