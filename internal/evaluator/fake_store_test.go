package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connection refused")

type readRange struct {
	Metric   models.MetricType
	From, To time.Time
}

// fakeStore in-memory Store recording every range it is asked for.
type fakeStore struct {
	mu sync.Mutex

	daily    []models.DailySummary
	intraday map[models.MetricType][]models.IntradayPoint

	dailyReads    []readRange
	intradayReads []readRange
	inserted      []models.AlertDraft
	nextID        int64

	failDaily    bool
	failIntraday bool
	// failInsertAt fails the n-th insert (1-based); 0 never fails.
	failInsertAt int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		intraday: map[models.MetricType][]models.IntradayPoint{},
	}
}

func unavailableErr() error {
	return fmt.Errorf("query: %w: %w", models.ErrStoreUnavailable, errConnRefused)
}

func (s *fakeStore) DailySummaries(ctx context.Context, userID int64, from, to time.Time) ([]models.DailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dailyReads = append(s.dailyReads, readRange{From: from, To: to})
	if s.failDaily {
		return nil, unavailableErr()
	}

	var out []models.DailySummary
	for _, row := range s.daily {
		if row.UserID != userID || row.Date.Before(from) || row.Date.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeStore) Intraday(ctx context.Context, userID int64, metric models.MetricType, from, to time.Time) ([]models.IntradayPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.intradayReads = append(s.intradayReads, readRange{Metric: metric, From: from, To: to})
	if s.failIntraday {
		return nil, unavailableErr()
	}

	var out []models.IntradayPoint
	for _, p := range s.intraday[metric] {
		if p.UserID != userID || p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *fakeStore) InsertAlert(ctx context.Context, draft models.AlertDraft) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsertAt > 0 && len(s.inserted)+1 == s.failInsertAt {
		return 0, unavailableErr()
	}
	s.nextID++
	s.inserted = append(s.inserted, draft)
	return s.nextID, nil
}

// row returns the summary for the date offset days before refDate, creating it.
func (s *fakeStore) row(userID int64, refDate time.Time, offset int) *models.DailySummary {
	date := refDate.AddDate(0, 0, -offset)
	for i := range s.daily {
		if s.daily[i].UserID == userID && s.daily[i].Date.Equal(date) {
			return &s.daily[i]
		}
	}
	s.daily = append(s.daily, models.DailySummary{UserID: userID, Date: date})
	return &s.daily[len(s.daily)-1]
}

// seedDaily writes values for field ending at refDate; the last value is the reference date.
// nil entries leave the field null.
func (s *fakeStore) seedDaily(userID int64, refDate time.Time, field models.SummaryField, values ...*float64) {
	for i, v := range values {
		offset := len(values) - 1 - i
		s.row(userID, refDate, offset).Set(field, v)
	}
}

func (s *fakeStore) seedIntraday(points ...models.IntradayPoint) {
	for _, p := range points {
		s.intraday[p.Metric] = append(s.intraday[p.Metric], p)
	}
}

func floats(values ...float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = models.Float(v)
	}
	return out
}

// minuteSeries builds one point per minute from start for n minutes.
func minuteSeries(userID int64, metric models.MetricType, start time.Time, n int, value func(i int, ts time.Time) float64) []models.IntradayPoint {
	points := make([]models.IntradayPoint, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)
		points[i] = models.IntradayPoint{UserID: userID, Timestamp: ts, Metric: metric, Value: value(i, ts)}
	}
	return points
}
