package service

import (
	"context"
	"fmt"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// AlertRepository alert persistence used by the service.
type AlertRepository interface {
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	ListAlerts(ctx context.Context, filters repository.AlertFilters) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, id, operatorID int64) (*models.Alert, error)
}

// CacheRefresher reloads a user's active alert cache.
type CacheRefresher interface {
	Refresh(ctx context.Context, userID int64) error
}

// AlertEventService alert queries and acknowledgement.
type AlertEventService struct {
	alerts AlertRepository
	cache  CacheRefresher
	logger *zap.Logger
}

// NewAlertEventService creates the service; cache may be nil.
func NewAlertEventService(alerts AlertRepository, cache CacheRefresher, logger *zap.Logger) *AlertEventService {
	return &AlertEventService{
		alerts: alerts,
		cache:  cache,
		logger: logger,
	}
}

// ListAlerts lists alerts newest first. The limit defaults to 100 and is capped at 1000.
func (s *AlertEventService) ListAlerts(ctx context.Context, filters repository.AlertFilters) ([]models.Alert, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}
	if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}
	if filters.From != nil && filters.To != nil && filters.To.Before(*filters.From) {
		return nil, fmt.Errorf("invalid range: to %s is before from %s", filters.To, filters.From)
	}
	for _, t := range filters.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown alert type %q", t)
		}
	}
	for _, p := range filters.Priorities {
		if !p.Valid() {
			return nil, fmt.Errorf("unknown priority %q", p)
		}
	}

	alerts, err := s.alerts.ListAlerts(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// GetAlert returns one alert.
func (s *AlertEventService) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	if id <= 0 {
		return nil, fmt.Errorf("alert id is required")
	}
	alert, err := s.alerts.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return alert, nil
}

// AcknowledgeAlert marks an alert acknowledged by operatorID and refreshes the
// owner's active alert cache.
func (s *AlertEventService) AcknowledgeAlert(ctx context.Context, id, operatorID int64) (*models.Alert, error) {
	if id <= 0 {
		return nil, fmt.Errorf("alert id is required")
	}
	if operatorID <= 0 {
		return nil, fmt.Errorf("operator id is required")
	}

	alert, err := s.alerts.AcknowledgeAlert(ctx, id, operatorID)
	if err != nil {
		s.logger.Warn("Failed to acknowledge alert",
			zap.Int64("alert_id", id),
			zap.Int64("operator_id", operatorID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to acknowledge alert %d: %w", id, err)
	}

	s.logger.Info("Alert acknowledged",
		zap.Int64("alert_id", id),
		zap.Int64("user_id", alert.UserID),
		zap.Int64("operator_id", operatorID),
	)

	if s.cache != nil {
		if err := s.cache.Refresh(ctx, alert.UserID); err != nil {
			s.logger.Warn("Failed to refresh active alert cache",
				zap.Int64("user_id", alert.UserID),
				zap.Error(err),
			)
		}
	}
	return alert, nil
}
