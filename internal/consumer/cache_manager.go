package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

// ErrCacheMiss no active alert entry for the user.
var ErrCacheMiss = errors.New("active alerts not cached")

const activeSuffix = ":active"

// AlertLister source of truth for unacknowledged alerts.
type AlertLister interface {
	ListUnacknowledged(ctx context.Context, userID int64) ([]models.Alert, error)
}

// CacheManager keeps the per-user list of unacknowledged alerts in Redis.
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	alerts      AlertLister
	logger      *zap.Logger
}

// NewCacheManager creates a cache manager.
func NewCacheManager(cfg *config.Config, redisClient *redis.Client, alerts AlertLister, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		alerts:      alerts,
		logger:      logger,
	}
}

func (c *CacheManager) key(userID int64) string {
	return c.config.Alert.Cache.KeyPrefix + strconv.FormatInt(userID, 10) + activeSuffix
}

// GetActiveAlerts returns the cached unacknowledged alerts of a user.
func (c *CacheManager) GetActiveAlerts(ctx context.Context, userID int64) ([]models.Alert, error) {
	data, err := c.redisClient.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get active alerts for user %d: %w", userID, err)
	}

	var alerts []models.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode active alerts for user %d: %w", userID, err)
	}
	return alerts, nil
}

// UpdateAlertCache overwrites the cached list; an empty list removes the key.
func (c *CacheManager) UpdateAlertCache(ctx context.Context, userID int64, alerts []models.Alert) error {
	key := c.key(userID)
	if len(alerts) == 0 {
		if err := c.redisClient.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear active alerts for user %d: %w", userID, err)
		}
		return nil
	}

	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to encode active alerts: %w", err)
	}
	if err := c.redisClient.Set(ctx, key, data, c.config.Alert.Cache.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set active alerts for user %d: %w", userID, err)
	}

	c.logger.Debug("Active alert cache updated",
		zap.Int64("user_id", userID),
		zap.Int("alert_count", len(alerts)),
	)
	return nil
}

// Refresh reloads the user's unacknowledged alerts from the store into the cache.
func (c *CacheManager) Refresh(ctx context.Context, userID int64) error {
	alerts, err := c.alerts.ListUnacknowledged(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list unacknowledged alerts: %w", err)
	}
	return c.UpdateAlertCache(ctx, userID, alerts)
}

// HandleAlerts refreshes the cache after new alerts were persisted for userID.
func (c *CacheManager) HandleAlerts(ctx context.Context, userID int64, _ []models.Alert) error {
	return c.Refresh(ctx, userID)
}
