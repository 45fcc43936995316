package consumer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	commonredis "github.com/morenopablo16/fitbit-project-sub000/internal/common/redis"
	alertconfig "github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/observability"
	"go.uber.org/zap"
)

// Evaluator alert evaluation entry point.
type Evaluator interface {
	// Evaluate runs every rule for the user at referenceTS and reports whether an alert was persisted.
	Evaluate(ctx context.Context, userID int64, referenceTS time.Time) (bool, error)
}

// Stream message fields.
const (
	FieldUserID      = "user_id"
	FieldReferenceTS = "reference_ts"
)

// ErrMalformedRequest a stream entry that can never be evaluated.
var ErrMalformedRequest = errors.New("malformed evaluation request")

// EvaluationRequest one entry of the evaluation stream.
type EvaluationRequest struct {
	UserID      int64
	ReferenceTS time.Time
}

// ParseEvaluationRequest decodes stream values; a missing reference_ts means now.
func ParseEvaluationRequest(values map[string]interface{}, now time.Time) (EvaluationRequest, error) {
	rawUser, ok := values[FieldUserID].(string)
	if !ok || strings.TrimSpace(rawUser) == "" {
		return EvaluationRequest{}, fmt.Errorf("%w: missing %s", ErrMalformedRequest, FieldUserID)
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(rawUser), 10, 64)
	if err != nil || userID <= 0 {
		return EvaluationRequest{}, fmt.Errorf("%w: invalid %s %q", ErrMalformedRequest, FieldUserID, rawUser)
	}

	req := EvaluationRequest{UserID: userID, ReferenceTS: now}
	if rawTS, ok := values[FieldReferenceTS].(string); ok && strings.TrimSpace(rawTS) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(rawTS))
		if err != nil {
			return EvaluationRequest{}, fmt.Errorf("%w: invalid %s %q", ErrMalformedRequest, FieldReferenceTS, rawTS)
		}
		req.ReferenceTS = ts
	}
	return req, nil
}

// PublishEvaluationRequest appends a request to the evaluation stream.
func PublishEvaluationRequest(ctx context.Context, client *redis.Client, stream string, req EvaluationRequest) (string, error) {
	values := map[string]interface{}{
		FieldUserID: req.UserID,
	}
	if !req.ReferenceTS.IsZero() {
		values[FieldReferenceTS] = req.ReferenceTS.UTC()
	}
	id, err := commonredis.PublishToStream(ctx, client, stream, values)
	if err != nil {
		return "", fmt.Errorf("failed to publish evaluation request: %w", err)
	}
	return id, nil
}

// StreamPublisher queues evaluation requests on one stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher creates a publisher for stream.
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

// PublishEvaluation appends req to the stream.
func (p *StreamPublisher) PublishEvaluation(ctx context.Context, req EvaluationRequest) error {
	_, err := PublishEvaluationRequest(ctx, p.client, p.stream, req)
	return err
}

// StreamConsumer evaluates users on demand from a Redis stream consumer group.
// Messages are processed one at a time; a message whose evaluation hit a store
// failure stays pending and is retried every retryInterval until it succeeds.
type StreamConsumer struct {
	config      *alertconfig.Config
	redisClient *redis.Client
	evaluator   Evaluator
	logger      *zap.Logger

	now           func() time.Time
	block         time.Duration
	retryInterval time.Duration

	retryPending bool
	nextRetry    time.Time
}

// NewStreamConsumer creates a stream consumer.
func NewStreamConsumer(cfg *alertconfig.Config, redisClient *redis.Client, evaluator Evaluator, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		evaluator:   evaluator,
		logger:      logger,
		now:           time.Now,
		block:         5 * time.Second,
		retryInterval: 30 * time.Second,
	}
}

// Start consumes until ctx is cancelled.
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Alert.Stream
	group := c.config.Alert.ConsumerGroup

	if err := commonredis.CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("group", group),
		zap.String("consumer", c.config.Alert.ConsumerName),
	)

	if _, err := c.drainPending(ctx); err != nil {
		c.logger.Error("Failed to process pending evaluation requests", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		if err := c.step(ctx); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stream consumer stopped")
				return nil
			}
			c.logger.Error("Failed to read evaluation stream", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// step retries pending requests once they are due, then polls for new ones.
func (c *StreamConsumer) step(ctx context.Context) error {
	if c.retryPending && !c.now().Before(c.nextRetry) {
		c.retryPending = false
		if _, err := c.drainPending(ctx); err != nil {
			return err
		}
	}
	_, err := c.poll(ctx)
	return err
}

// poll reads one batch of new messages and returns how many were acknowledged.
func (c *StreamConsumer) poll(ctx context.Context) (int, error) {
	messages, err := commonredis.ReadFromStream(ctx, c.redisClient,
		c.config.Alert.Stream, c.config.Alert.ConsumerGroup, c.config.Alert.ConsumerName,
		int64(c.config.Alert.BatchSize), c.block)
	if err != nil {
		return 0, err
	}
	return c.process(ctx, messages)
}

// drainPending re-reads entries delivered to this consumer but never acknowledged.
func (c *StreamConsumer) drainPending(ctx context.Context) (int, error) {
	streams, err := c.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Alert.ConsumerGroup,
		Consumer: c.config.Alert.ConsumerName,
		Streams:  []string{c.config.Alert.Stream, "0"},
		Count:    int64(c.config.Alert.BatchSize),
		Block:    -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	var messages []commonredis.StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, commonredis.StreamMessage{Stream: s.Stream, ID: msg.ID, Values: msg.Values})
		}
	}
	if len(messages) > 0 {
		c.logger.Info("Retrying pending evaluation requests", zap.Int("count", len(messages)))
	}
	return c.process(ctx, messages)
}

func (c *StreamConsumer) process(ctx context.Context, messages []commonredis.StreamMessage) (int, error) {
	acks := make([]string, 0, len(messages))
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if c.handle(ctx, msg) {
			acks = append(acks, msg.ID)
		}
	}

	if err := commonredis.AckMessages(ctx, c.redisClient, c.config.Alert.Stream, c.config.Alert.ConsumerGroup, acks...); err != nil {
		return 0, err
	}
	return len(acks), nil
}

// handle evaluates one message and reports whether it should be acknowledged.
func (c *StreamConsumer) handle(ctx context.Context, msg commonredis.StreamMessage) bool {
	req, err := ParseEvaluationRequest(msg.Values, c.now())
	if err != nil {
		observability.RecordStreamMessage("malformed")
		c.logger.Warn("Dropping malformed evaluation request",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return true
	}

	alerted, err := c.evaluator.Evaluate(ctx, req.UserID, req.ReferenceTS)
	if err != nil {
		observability.RecordStreamMessage("failed")
		c.logger.Error("Evaluation failed",
			zap.String("message_id", msg.ID),
			zap.Int64("user_id", req.UserID),
			zap.Time("reference_ts", req.ReferenceTS),
			zap.Error(err),
		)
		// only store outages are worth retrying
		if errors.Is(err, models.ErrStoreUnavailable) {
			if !c.retryPending {
				c.retryPending = true
				c.nextRetry = c.now().Add(c.retryInterval)
			}
			return false
		}
		return true
	}

	observability.RecordStreamMessage("processed")
	c.logger.Debug("Evaluation request processed",
		zap.String("message_id", msg.ID),
		zap.Int64("user_id", req.UserID),
		zap.Bool("alerted", alerted),
	)
	return true
}

