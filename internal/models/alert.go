package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrStoreUnavailable is wrapped by every store failure (unreachable, timeout, cancelled).
var ErrStoreUnavailable = errors.New("store unavailable")

// AlertType closed alert taxonomy.
type AlertType string

const (
	AlertActivityDrop             AlertType = "activity_drop"
	AlertSedentaryIncrease        AlertType = "sedentary_increase"
	AlertSleepDurationChange      AlertType = "sleep_duration_change"
	AlertHeartRateAnomaly         AlertType = "heart_rate_anomaly"
	AlertHeartRateAnomalyIntraday AlertType = "heart_rate_anomaly_intraday"
	AlertStepsAnomaly             AlertType = "steps_anomaly"
	AlertActiveZoneMinutesAnomaly AlertType = "active_zone_minutes_anomaly"
	AlertCaloriesAnomaly          AlertType = "calories_anomaly"
	AlertIntradayActivityDrop     AlertType = "intraday_activity_drop"
	AlertDataQuality              AlertType = "data_quality"
)

// AlertTypes lists the closed set.
var AlertTypes = []AlertType{
	AlertActivityDrop,
	AlertSedentaryIncrease,
	AlertSleepDurationChange,
	AlertHeartRateAnomaly,
	AlertHeartRateAnomalyIntraday,
	AlertStepsAnomaly,
	AlertActiveZoneMinutesAnomaly,
	AlertCaloriesAnomaly,
	AlertIntradayActivityDrop,
	AlertDataQuality,
}

// Valid reports membership in the closed set.
func (t AlertType) Valid() bool {
	for _, known := range AlertTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Priority alert priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities; unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}

// Valid reports whether p is low, medium or high.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Threshold is a numeric threshold, a textual range such as "30-200", or null.
type Threshold struct {
	Number *float64
	Range  string
}

// NumericThreshold builds a numeric threshold.
func NumericThreshold(v float64) Threshold {
	return Threshold{Number: &v}
}

// RangeThreshold builds a textual "low-high" threshold. Bands describe
// non-negative measurements, so edges are clamped at 0 and "-" only ever
// separates the two edges.
func RangeThreshold(low, high float64) Threshold {
	return Threshold{Range: formatBound(math.Max(low, 0)) + "-" + formatBound(math.Max(high, 0))}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

// IsNull reports whether neither a value nor a range is set.
func (t Threshold) IsNull() bool {
	return t.Number == nil && t.Range == ""
}

// String renders the stored text form; empty when null.
func (t Threshold) String() string {
	if t.Number != nil {
		return strconv.FormatFloat(*t.Number, 'f', -1, 64)
	}
	return t.Range
}

// ParseThreshold reverses String.
func ParseThreshold(s string) Threshold {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Threshold{Number: &v}
	}
	return Threshold{Range: s}
}

// MarshalJSON emits a number, a string or null.
func (t Threshold) MarshalJSON() ([]byte, error) {
	switch {
	case t.Number != nil:
		return json.Marshal(*t.Number)
	case t.Range != "":
		return json.Marshal(t.Range)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a number, a string or null.
func (t *Threshold) UnmarshalJSON(data []byte) error {
	*t = Threshold{}
	if string(data) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		t.Number = &v
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("threshold must be number, string or null: %w", err)
	}
	t.Range = s
	return nil
}

// Value implements driver.Valuer (TEXT column, NULL when unset).
func (t Threshold) Value() (driver.Value, error) {
	if t.IsNull() {
		return nil, nil
	}
	return t.String(), nil
}

// AlertDetails structured provenance attached to an alert.
type AlertDetails struct {
	Message      string   `json:"message"`
	Metric       string   `json:"metric,omitempty"`
	Issue        string   `json:"issue,omitempty"`
	Direction    string   `json:"direction,omitempty"`
	Mean         *float64 `json:"mean,omitempty"`
	StdDev       *float64 `json:"std_dev,omitempty"`
	Threshold    *float64 `json:"threshold,omitempty"`
	SampleCount  int      `json:"sample_count,omitempty"`
	AnomalyCount int      `json:"anomaly_count,omitempty"`
	WindowStart  string   `json:"window_start,omitempty"`
	WindowEnd    string   `json:"window_end,omitempty"`
	RunStart     string   `json:"run_start,omitempty"`
	RunEnd       string   `json:"run_end,omitempty"`
	RunMinutes   int      `json:"run_minutes,omitempty"`
}

// AlertDraft an unpersisted alert (no id, no alert_time).
type AlertDraft struct {
	UserID          int64        `json:"user_id"`
	Type            AlertType    `json:"alert_type"`
	Priority        Priority     `json:"priority"`
	TriggeringValue *float64     `json:"triggering_value"`
	ThresholdValue  Threshold    `json:"threshold_value"`
	Details         AlertDetails `json:"details"`
	ReferenceTime   time.Time    `json:"-"`
}

// Alert a persisted alerts row.
type Alert struct {
	ID             int64      `json:"id"`
	AlertTime      time.Time  `json:"alert_time"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	AcknowledgedBy *int64     `json:"acknowledged_by"`
	Acknowledged   bool       `json:"acknowledged"`
	AlertDraft
}
