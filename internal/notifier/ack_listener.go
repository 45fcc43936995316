package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/morenopablo16/fitbit-project-sub000/internal/common/mqtt"
	"github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/repository"
	"go.uber.org/zap"
)

// AckRequest acknowledgement sent by a caregiver device.
type AckRequest struct {
	AlertID    int64 `json:"alert_id"`
	OperatorID int64 `json:"operator_id"`
}

// Acknowledger marks alerts acknowledged.
type Acknowledger interface {
	AcknowledgeAlert(ctx context.Context, id, operatorID int64) (*models.Alert, error)
}

// Subscriber MQTT subscribe side (satisfied by common/mqtt.Client).
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// AckListener applies acknowledgements published on <prefix>/ack.
type AckListener struct {
	subscriber   Subscriber
	acknowledger Acknowledger
	topic        string
	qos          byte
	logger       *zap.Logger
}

// NewAckListener creates a listener.
func NewAckListener(cfg *config.Config, subscriber Subscriber, acknowledger Acknowledger, logger *zap.Logger) *AckListener {
	return &AckListener{
		subscriber:   subscriber,
		acknowledger: acknowledger,
		topic:        strings.TrimSuffix(cfg.Alert.Notify.TopicPrefix, "/") + "/ack",
		qos:          cfg.MQTT.QoS,
		logger:       logger,
	}
}

// Topic acknowledgement topic.
func (l *AckListener) Topic() string {
	return l.topic
}

// Start subscribes; messages are handled with ctx.
func (l *AckListener) Start(ctx context.Context) error {
	if err := l.subscriber.Subscribe(l.topic, l.qos, func(_ string, payload []byte) error {
		return l.Handle(ctx, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", l.topic, err)
	}
	l.logger.Info("Listening for alert acknowledgements", zap.String("topic", l.topic))
	return nil
}

// Handle applies one acknowledgement. Repeated acknowledgements are ignored.
func (l *AckListener) Handle(ctx context.Context, payload []byte) error {
	var req AckRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid acknowledgement payload: %w", err)
	}
	if req.AlertID <= 0 || req.OperatorID <= 0 {
		return fmt.Errorf("acknowledgement needs alert_id and operator_id")
	}

	if _, err := l.acknowledger.AcknowledgeAlert(ctx, req.AlertID, req.OperatorID); err != nil {
		if errors.Is(err, repository.ErrAlreadyAcknowledged) {
			l.logger.Debug("Alert already acknowledged", zap.Int64("alert_id", req.AlertID))
			return nil
		}
		return err
	}
	return nil
}
