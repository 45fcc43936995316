package repository

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

var (
	// ErrAlertNotFound no alert with the given id.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrAlreadyAcknowledged the alert already left the created state.
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	// ErrUserNotFound no user matches.
	ErrUserNotFound = errors.New("user not found")
)

const dateLayout = "2006-01-02"

// unavailable tags a driver/connection error as a store outage.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// finite reports whether v can be used as a numeric sample.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
