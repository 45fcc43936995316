package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/morenopablo16/fitbit-project-sub000/internal/common/database"
	"github.com/morenopablo16/fitbit-project-sub000/internal/common/mqtt"
	commonredis "github.com/morenopablo16/fitbit-project-sub000/internal/common/redis"
	"github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/consumer"
	"github.com/morenopablo16/fitbit-project-sub000/internal/evaluator"
	"github.com/morenopablo16/fitbit-project-sub000/internal/export"
	"github.com/morenopablo16/fitbit-project-sub000/internal/ingest"
	"github.com/morenopablo16/fitbit-project-sub000/internal/notifier"
	"github.com/morenopablo16/fitbit-project-sub000/internal/repository"
	"go.uber.org/zap"
)

// AlertService wires the store, engine, consumers and sinks together.
type AlertService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	Store     *repository.Store
	Cache     *consumer.CacheManager
	Engine    *evaluator.Engine
	Alerts    *AlertEventService
	Scheduler *consumer.Scheduler
	Stream    *consumer.StreamConsumer
	Ingester  *ingest.Ingester
	Exporter  *export.Exporter

	ackListener *notifier.AckListener
}

// NewAlertService connects to PostgreSQL and Redis and builds every component.
// MQTT is optional: when the broker is unreachable notifications are disabled.
func NewAlertService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AlertService, error) {
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	if err := commonredis.Ping(ctx, redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	tokens, err := repository.NewTokenCipher(cfg.Fitbit.TokenKey)
	if err != nil {
		database.Close(db)
		commonredis.Close(redisClient)
		return nil, err
	}

	store := repository.NewStore(db, tokens, logger)
	cache := consumer.NewCacheManager(cfg, redisClient, store, logger)

	engine := evaluator.NewEngine(store, logger,
		evaluator.WithLocation(cfg.Alert.Location),
		evaluator.WithSinks(cache),
	)

	s := &AlertService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		logger:      logger,
		Store:       store,
		Cache:       cache,
		Engine:      engine,
		Alerts:      NewAlertEventService(store, cache, logger),
		Scheduler:   consumer.NewScheduler(cfg, store, engine, logger),
		Stream:      consumer.NewStreamConsumer(cfg, redisClient, engine, logger),
		Exporter:    export.NewExporter(store, cfg.Alert.Location),
	}

	s.Ingester = ingest.NewIngester(
		ingest.NewFitbitClient(cfg, logger),
		store,
		consumer.NewStreamPublisher(redisClient, cfg.Alert.Stream),
		cfg.Alert.Location,
		logger,
	)

	if cfg.MQTT.Broker != "" {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT unavailable, alert notifications disabled",
				zap.String("broker", cfg.MQTT.Broker),
				zap.Error(err),
			)
		} else {
			s.mqttClient = mqttClient
			engine.AddSink(notifier.NewNotifier(cfg, mqttClient, logger))
			s.ackListener = notifier.NewAckListener(cfg, mqttClient, s.Alerts, logger)
		}
	}

	return s, nil
}

// Start runs the scheduler, the stream consumer and the acknowledgement listener
// until ctx is cancelled or one of them fails.
func (s *AlertService) Start(ctx context.Context) error {
	s.logger.Info("Starting alert service",
		zap.String("timezone", s.config.Alert.Timezone),
		zap.String("stream", s.config.Alert.Stream),
	)

	if s.ackListener != nil {
		if err := s.ackListener.Start(ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	run := func(name string, start func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				once.Do(func() {
					firstErr = fmt.Errorf("%s: %w", name, err)
					cancel()
				})
			}
		}()
	}

	run("scheduler", s.Scheduler.Start)
	run("stream consumer", s.Stream.Start)

	wg.Wait()
	return firstErr
}

// Stop closes every connection.
func (s *AlertService) Stop() error {
	s.logger.Info("Stopping alert service")

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		s.mqttClient.Disconnect()
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := commonredis.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	return nil
}

