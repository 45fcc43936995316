package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/observability"
	"go.uber.org/zap"
)

// Publisher MQTT publish side (satisfied by common/mqtt.Client).
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Notifier publishes persisted alerts at or above a minimum priority to MQTT.
type Notifier struct {
	publisher   Publisher
	topicPrefix string
	minPriority models.Priority
	qos         byte
	logger      *zap.Logger
}

// NewNotifier creates a notifier from the alert notify settings.
func NewNotifier(cfg *config.Config, publisher Publisher, logger *zap.Logger) *Notifier {
	return &Notifier{
		publisher:   publisher,
		topicPrefix: strings.TrimSuffix(cfg.Alert.Notify.TopicPrefix, "/"),
		minPriority: cfg.Alert.Notify.MinPriority,
		qos:         cfg.MQTT.QoS,
		logger:      logger,
	}
}

// Topic per-user alert topic.
func (n *Notifier) Topic(userID int64) string {
	return n.topicPrefix + "/" + strconv.FormatInt(userID, 10)
}

// HandleAlerts publishes each qualifying alert; it keeps going after a failed publish
// and returns the first error.
func (n *Notifier) HandleAlerts(ctx context.Context, userID int64, alerts []models.Alert) error {
	var firstErr error
	for _, alert := range alerts {
		if alert.Priority.Rank() < n.minPriority.Rank() {
			observability.RecordNotification("filtered")
			continue
		}

		payload, err := json.Marshal(alert)
		if err != nil {
			observability.RecordNotification("failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to encode alert %d: %w", alert.ID, err)
			}
			continue
		}

		topic := n.Topic(userID)
		if err := n.publisher.Publish(topic, n.qos, false, payload); err != nil {
			observability.RecordNotification("failed")
			n.logger.Warn("Failed to publish alert",
				zap.String("topic", topic),
				zap.Int64("alert_id", alert.ID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to publish alert %d to %s: %w", alert.ID, topic, err)
			}
			continue
		}

		observability.RecordNotification("published")
		n.logger.Debug("Alert published",
			zap.String("topic", topic),
			zap.Int64("alert_id", alert.ID),
			zap.String("priority", string(alert.Priority)),
		)
	}
	return firstErr
}
