package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/observability"
	"go.uber.org/zap"
)

// ErrTokenExpired the access token was rejected with 401.
var ErrTokenExpired = errors.New("fitbit access token expired")

const dateLayout = "2006-01-02"

// Tokens OAuth token pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// APIError a non-2xx Fitbit response other than 401.
type APIError struct {
	Resource   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fitbit %s: status %d: %s", e.Resource, e.StatusCode, e.Body)
}

// FitbitClient Fitbit Web API client.
type FitbitClient struct {
	httpClient   *resty.Client
	tokenURL     string
	clientID     string
	clientSecret string
	location     *time.Location
	logger       *zap.Logger
}

// NewFitbitClient creates a client from the Fitbit settings.
func NewFitbitClient(cfg *config.Config, logger *zap.Logger) *FitbitClient {
	client := resty.New().
		SetBaseURL(cfg.Fitbit.APIURL).
		SetTimeout(cfg.Fitbit.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && (resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500)
		}).
		SetHeader("Accept", "application/json")

	loc := cfg.Alert.Location
	if loc == nil {
		loc = time.UTC
	}

	return &FitbitClient{
		httpClient:   client,
		tokenURL:     cfg.Fitbit.TokenURL,
		clientID:     cfg.Fitbit.ClientID,
		clientSecret: cfg.Fitbit.ClientSecret,
		location:     loc,
		logger:       logger,
	}
}

func (c *FitbitClient) get(ctx context.Context, accessToken, resource, path string, result interface{}) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(result).
		Get(path)
	if err != nil {
		observability.RecordIngestRequest(resource, 0)
		return fmt.Errorf("failed to call fitbit %s: %w", resource, err)
	}

	observability.RecordIngestRequest(resource, resp.StatusCode())
	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrTokenExpired
	}
	if resp.IsError() {
		c.logger.Warn("Fitbit API returned error",
			zap.String("resource", resource),
			zap.Int("status_code", resp.StatusCode()),
		)
		return &APIError{Resource: resource, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// RefreshTokens exchanges a refresh token for a new token pair.
func (c *FitbitClient) RefreshTokens(ctx context.Context, refreshToken string) (Tokens, error) {
	var tokens Tokens
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		SetResult(&tokens).
		Post(c.tokenURL)
	if err != nil {
		observability.RecordIngestRequest("token", 0)
		return Tokens{}, fmt.Errorf("failed to refresh fitbit token: %w", err)
	}

	observability.RecordIngestRequest("token", resp.StatusCode())
	if resp.IsError() {
		return Tokens{}, &APIError{Resource: "token", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("fitbit token response is missing tokens")
	}
	return tokens, nil
}

type activityResponse struct {
	Summary struct {
		Steps             *float64 `json:"steps"`
		CaloriesOut       *float64 `json:"caloriesOut"`
		Floors            *float64 `json:"floors"`
		Elevation         *float64 `json:"elevation"`
		VeryActiveMinutes *float64 `json:"veryActiveMinutes"`
		SedentaryMinutes  *float64 `json:"sedentaryMinutes"`
		Distances         []struct {
			Activity string  `json:"activity"`
			Distance float64 `json:"distance"`
		} `json:"distances"`
	} `json:"summary"`
}

type heartResponse struct {
	ActivitiesHeart []struct {
		Value struct {
			RestingHeartRate *float64 `json:"restingHeartRate"`
		} `json:"value"`
	} `json:"activities-heart"`
}

type sleepResponse struct {
	Sleep []struct {
		StartTime     string `json:"startTime"`
		EndTime       string `json:"endTime"`
		Duration      *int64 `json:"duration"`
		Efficiency    *int   `json:"efficiency"`
		MinutesAsleep *int   `json:"minutesAsleep"`
		MinutesAwake  *int   `json:"minutesAwake"`
		Levels        struct {
			Summary struct {
				Deep  *stageSummary `json:"deep"`
				Light *stageSummary `json:"light"`
				REM   *stageSummary `json:"rem"`
			} `json:"summary"`
		} `json:"levels"`
	} `json:"sleep"`
}

type stageSummary struct {
	Minutes int `json:"minutes"`
}

type foodsResponse struct {
	Summary struct {
		Calories *float64 `json:"calories"`
	} `json:"summary"`
}

type waterResponse struct {
	Summary struct {
		Water *float64 `json:"water"`
	} `json:"summary"`
}

type spo2Response struct {
	Value struct {
		Avg *float64 `json:"avg"`
	} `json:"value"`
}

type breathingResponse struct {
	BR []struct {
		Value struct {
			BreathingRate *float64 `json:"breathingRate"`
		} `json:"value"`
	} `json:"br"`
}

type temperatureResponse struct {
	TempCore []struct {
		Value *float64 `json:"value"`
	} `json:"tempCore"`
}

// DailySummary fetches the daily aggregates for date. Absent values stay nil.
// An expired token aborts immediately; other per-resource failures are logged and
// leave their fields null.
func (c *FitbitClient) DailySummary(ctx context.Context, accessToken string, userID int64, date time.Time) (models.DailySummary, error) {
	day := date.Format(dateLayout)
	summary := models.DailySummary{UserID: userID, Date: models.DateOf(date)}

	fetch := func(resource, path string, result interface{}) (bool, error) {
		err := c.get(ctx, accessToken, resource, path, result)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, ErrTokenExpired) || ctx.Err() != nil {
			return false, err
		}
		c.logger.Warn("Skipping fitbit resource",
			zap.Int64("user_id", userID),
			zap.String("resource", resource),
			zap.Error(err),
		)
		return false, nil
	}

	var activity activityResponse
	ok, err := fetch("activity", "/1/user/-/activities/date/"+day+".json", &activity)
	if err != nil {
		return summary, err
	}
	if ok {
		s := activity.Summary
		summary.Steps = s.Steps
		summary.Calories = s.CaloriesOut
		summary.Floors = s.Floors
		summary.Elevation = s.Elevation
		summary.ActiveMinutes = s.VeryActiveMinutes
		summary.SedentaryMinutes = s.SedentaryMinutes
		for _, d := range s.Distances {
			if d.Activity == "total" {
				summary.Distance = models.Float(d.Distance)
				break
			}
		}
	}

	var heart heartResponse
	if ok, err = fetch("heart", "/1/user/-/activities/heart/date/"+day+"/1d.json", &heart); err != nil {
		return summary, err
	}
	if ok && len(heart.ActivitiesHeart) > 0 {
		summary.RestingHeartRate = heart.ActivitiesHeart[0].Value.RestingHeartRate
	}

	var sleep sleepResponse
	if ok, err = fetch("sleep", "/1.2/user/-/sleep/date/"+day+".json", &sleep); err != nil {
		return summary, err
	}
	if ok && len(sleep.Sleep) > 0 {
		total := 0.0
		for _, s := range sleep.Sleep {
			if s.MinutesAsleep != nil {
				total += float64(*s.MinutesAsleep)
			}
		}
		summary.SleepMinutes = models.Float(total)
	}

	var foods foodsResponse
	if ok, err = fetch("foods", "/1/user/-/foods/log/date/"+day+".json", &foods); err != nil {
		return summary, err
	}
	if ok {
		summary.NutritionCalories = foods.Summary.Calories
	}

	var water waterResponse
	if ok, err = fetch("water", "/1/user/-/foods/log/water/date/"+day+".json", &water); err != nil {
		return summary, err
	}
	if ok {
		summary.Water = water.Summary.Water
	}

	var spo2 spo2Response
	if ok, err = fetch("spo2", "/1/user/-/spo2/date/"+day+".json", &spo2); err != nil {
		return summary, err
	}
	if ok {
		summary.OxygenSaturation = spo2.Value.Avg
	}

	var br breathingResponse
	if ok, err = fetch("breathing_rate", "/1/user/-/br/date/"+day+".json", &br); err != nil {
		return summary, err
	}
	if ok && len(br.BR) > 0 {
		summary.RespiratoryRate = br.BR[0].Value.BreathingRate
	}

	var temp temperatureResponse
	if ok, err = fetch("temperature", "/1/user/-/temp/core/date/"+day+".json", &temp); err != nil {
		return summary, err
	}
	if ok && len(temp.TempCore) > 0 {
		summary.Temperature = temp.TempCore[0].Value
	}

	return summary, nil
}

// SleepLogs fetches the sleep sessions that ended on date.
func (c *FitbitClient) SleepLogs(ctx context.Context, accessToken string, userID int64, date time.Time) ([]models.SleepLog, error) {
	var resp sleepResponse
	if err := c.get(ctx, accessToken, "sleep", "/1.2/user/-/sleep/date/"+date.Format(dateLayout)+".json", &resp); err != nil {
		return nil, err
	}

	logs := make([]models.SleepLog, 0, len(resp.Sleep))
	for _, s := range resp.Sleep {
		start, err := c.parseLocal(s.StartTime)
		if err != nil {
			c.logger.Warn("Skipping sleep log with bad start time", zap.String("start_time", s.StartTime))
			continue
		}
		end, err := c.parseLocal(s.EndTime)
		if err != nil {
			c.logger.Warn("Skipping sleep log with bad end time", zap.String("end_time", s.EndTime))
			continue
		}
		logs = append(logs, models.SleepLog{
			UserID:        userID,
			StartTime:     start,
			EndTime:       end,
			DurationMs:    s.Duration,
			Efficiency:    s.Efficiency,
			MinutesAsleep: s.MinutesAsleep,
			MinutesAwake:  s.MinutesAwake,
			MinutesDeep:   stageMinutes(s.Levels.Summary.Deep),
			MinutesLight:  stageMinutes(s.Levels.Summary.Light),
			MinutesREM:    stageMinutes(s.Levels.Summary.REM),
		})
	}
	return logs, nil
}

func stageMinutes(s *stageSummary) *int {
	if s == nil {
		return nil
	}
	m := s.Minutes
	return &m
}

// parseLocal parses Fitbit's zone-less timestamps in the configured location.
func (c *FitbitClient) parseLocal(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, c.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised fitbit timestamp %q", value)
}

// intradayResources Fitbit resource path per metric.
var intradayResources = map[models.MetricType]string{
	models.MetricHeartRate:         "heart",
	models.MetricSteps:             "steps",
	models.MetricCalories:          "calories",
	models.MetricDistance:          "distance",
	models.MetricActiveZoneMinutes: "active-zone-minutes",
}

// IntradayMetrics metrics fetched per day, in fetch order.
var IntradayMetrics = []models.MetricType{
	models.MetricHeartRate,
	models.MetricSteps,
	models.MetricCalories,
	models.MetricDistance,
	models.MetricActiveZoneMinutes,
}

type intradayDataset struct {
	Dataset []struct {
		Time  string   `json:"time"`
		Value *float64 `json:"value"`
	} `json:"dataset"`
}

type azmMinute struct {
	Minute string `json:"minute"`
	Value  struct {
		ActiveZoneMinutes *float64 `json:"activeZoneMinutes"`
	} `json:"value"`
}

// Intraday fetches the 1-minute series of metric for date.
func (c *FitbitClient) Intraday(ctx context.Context, accessToken string, userID int64, metric models.MetricType, date time.Time) ([]models.IntradayPoint, error) {
	resource, ok := intradayResources[metric]
	if !ok {
		return nil, fmt.Errorf("unsupported intraday metric %q", metric)
	}

	day := date.Format(dateLayout)
	path := "/1/user/-/activities/" + resource + "/date/" + day + "/1d/1min.json"

	var raw map[string]json.RawMessage
	if err := c.get(ctx, accessToken, "intraday_"+string(metric), path, &raw); err != nil {
		return nil, err
	}

	key := "activities-" + resource + "-intraday"
	body, ok := raw[key]
	if !ok {
		return nil, nil
	}

	var points []models.IntradayPoint
	add := func(ts time.Time, v *float64) {
		if v == nil {
			return
		}
		points = append(points, models.IntradayPoint{UserID: userID, Timestamp: ts, Metric: metric, Value: *v})
	}

	if metric == models.MetricActiveZoneMinutes {
		var days []struct {
			Minutes []azmMinute `json:"minutes"`
		}
		if err := json.Unmarshal(body, &days); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		for _, d := range days {
			for _, m := range d.Minutes {
				ts, err := c.parseLocal(m.Minute)
				if err != nil {
					continue
				}
				add(ts, m.Value.ActiveZoneMinutes)
			}
		}
		return points, nil
	}

	var dataset intradayDataset
	if err := json.Unmarshal(body, &dataset); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	for _, p := range dataset.Dataset {
		ts, err := time.ParseInLocation(dateLayout+" 15:04:05", day+" "+p.Time, c.location)
		if err != nil {
			continue
		}
		add(ts, p.Value)
	}
	return points, nil
}
