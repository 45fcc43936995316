package models

import "time"

// MetricType intraday_metrics.type
type MetricType string

const (
	MetricHeartRate         MetricType = "heart_rate"
	MetricSteps             MetricType = "steps"
	MetricCalories          MetricType = "calories"
	MetricDistance          MetricType = "distance"
	MetricActiveZoneMinutes MetricType = "active_zone_minutes"
)

// Valid reports whether m is a known metric type.
func (m MetricType) Valid() bool {
	switch m {
	case MetricHeartRate, MetricSteps, MetricCalories, MetricDistance, MetricActiveZoneMinutes:
		return true
	}
	return false
}

// IntradayPoint one minute-level sample.
type IntradayPoint struct {
	UserID    int64      `json:"user_id"`
	Timestamp time.Time  `json:"timestamp"`
	Metric    MetricType `json:"metric_type"`
	Value     float64    `json:"value"`
}

// SleepLog one sleep session.
type SleepLog struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DurationMs    *int64    `json:"duration_ms"`
	Efficiency    *int      `json:"efficiency"`
	MinutesAsleep *int      `json:"minutes_asleep"`
	MinutesAwake  *int      `json:"minutes_awake"`
	MinutesREM    *int      `json:"minutes_in_rem"`
	MinutesLight  *int      `json:"minutes_in_light"`
	MinutesDeep   *int      `json:"minutes_in_deep"`
}

// User a wearable owner instance. Several rows may share an email; the newest one is current.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AccessToken  *string   `json:"-"`
	RefreshToken *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
