package models

import "time"

// DailySummary one row of daily_summaries; (UserID, Date) is unique. nil means null.
type DailySummary struct {
	UserID int64     `json:"user_id"`
	Date   time.Time `json:"date"`

	Steps             *float64 `json:"steps"`
	RestingHeartRate  *float64 `json:"resting_heart_rate"`
	SleepMinutes      *float64 `json:"sleep_minutes"`
	Calories          *float64 `json:"calories"`
	Distance          *float64 `json:"distance"`
	Floors            *float64 `json:"floors"`
	Elevation         *float64 `json:"elevation"`
	ActiveMinutes     *float64 `json:"active_minutes"`
	SedentaryMinutes  *float64 `json:"sedentary_minutes"`
	NutritionCalories *float64 `json:"nutrition_calories"`
	Water             *float64 `json:"water"`
	Weight            *float64 `json:"weight"`
	BMI               *float64 `json:"bmi"`
	Fat               *float64 `json:"fat"`
	OxygenSaturation  *float64 `json:"oxygen_saturation"`
	RespiratoryRate   *float64 `json:"respiratory_rate"`
	Temperature       *float64 `json:"temperature"`
}

// SummaryField names a numeric DailySummary attribute.
type SummaryField string

const (
	FieldSteps             SummaryField = "steps"
	FieldRestingHeartRate  SummaryField = "heart_rate"
	FieldSleepMinutes      SummaryField = "sleep_minutes"
	FieldCalories          SummaryField = "calories"
	FieldDistance          SummaryField = "distance"
	FieldFloors            SummaryField = "floors"
	FieldElevation         SummaryField = "elevation"
	FieldActiveMinutes     SummaryField = "active_minutes"
	FieldSedentaryMinutes  SummaryField = "sedentary_minutes"
	FieldNutritionCalories SummaryField = "nutrition_calories"
	FieldWater             SummaryField = "water"
	FieldWeight            SummaryField = "weight"
	FieldBMI               SummaryField = "bmi"
	FieldFat               SummaryField = "fat"
	FieldOxygenSaturation  SummaryField = "oxygen_saturation"
	FieldRespiratoryRate   SummaryField = "respiratory_rate"
	FieldTemperature       SummaryField = "temperature"
)

// SummaryColumn ties a field to its daily_summaries column and struct slot.
type SummaryColumn struct {
	Field  SummaryField
	Column string
	Ref    func(s *DailySummary) **float64
}

// SummaryColumns is the only description of the numeric daily_summaries layout.
// Column order here is the SELECT / INSERT order used by the repository.
var SummaryColumns = []SummaryColumn{
	{FieldSteps, "steps", func(s *DailySummary) **float64 { return &s.Steps }},
	{FieldRestingHeartRate, "heart_rate", func(s *DailySummary) **float64 { return &s.RestingHeartRate }},
	{FieldSleepMinutes, "sleep_minutes", func(s *DailySummary) **float64 { return &s.SleepMinutes }},
	{FieldCalories, "calories", func(s *DailySummary) **float64 { return &s.Calories }},
	{FieldDistance, "distance", func(s *DailySummary) **float64 { return &s.Distance }},
	{FieldFloors, "floors", func(s *DailySummary) **float64 { return &s.Floors }},
	{FieldElevation, "elevation", func(s *DailySummary) **float64 { return &s.Elevation }},
	{FieldActiveMinutes, "active_minutes", func(s *DailySummary) **float64 { return &s.ActiveMinutes }},
	{FieldSedentaryMinutes, "sedentary_minutes", func(s *DailySummary) **float64 { return &s.SedentaryMinutes }},
	{FieldNutritionCalories, "nutrition_calories", func(s *DailySummary) **float64 { return &s.NutritionCalories }},
	{FieldWater, "water", func(s *DailySummary) **float64 { return &s.Water }},
	{FieldWeight, "weight", func(s *DailySummary) **float64 { return &s.Weight }},
	{FieldBMI, "bmi", func(s *DailySummary) **float64 { return &s.BMI }},
	{FieldFat, "fat", func(s *DailySummary) **float64 { return &s.Fat }},
	{FieldOxygenSaturation, "oxygen_saturation", func(s *DailySummary) **float64 { return &s.OxygenSaturation }},
	{FieldRespiratoryRate, "respiratory_rate", func(s *DailySummary) **float64 { return &s.RespiratoryRate }},
	{FieldTemperature, "temperature", func(s *DailySummary) **float64 { return &s.Temperature }},
}

var summaryColumnIndex = func() map[SummaryField]SummaryColumn {
	idx := make(map[SummaryField]SummaryColumn, len(SummaryColumns))
	for _, c := range SummaryColumns {
		idx[c.Field] = c
	}
	return idx
}()

// Value returns the field value, nil when null or the field is unknown.
func (s DailySummary) Value(field SummaryField) *float64 {
	c, ok := summaryColumnIndex[field]
	if !ok {
		return nil
	}
	return *c.Ref(&s)
}

// Set assigns the field; unknown fields are ignored.
func (s *DailySummary) Set(field SummaryField, v *float64) {
	if c, ok := summaryColumnIndex[field]; ok {
		*c.Ref(s) = v
	}
}

// DateOf returns the calendar date of t (in t's location) as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
