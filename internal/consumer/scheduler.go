package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/observability"
	"go.uber.org/zap"
)

// UserLister lists the current instance of every user.
type UserLister interface {
	ListCurrentUsers(ctx context.Context) ([]models.User, error)
}

// TickResult counts of one scheduler pass.
type TickResult struct {
	Users   int
	Alerted int
	Failed  int
}

// Scheduler evaluates every current user on a fixed interval.
type Scheduler struct {
	config    *config.Config
	users     UserLister
	evaluator Evaluator
	logger    *zap.Logger

	now func() time.Time
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg *config.Config, users UserLister, evaluator Evaluator, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:    cfg,
		users:     users,
		evaluator: evaluator,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs one pass immediately and then one per poll interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Scheduler started",
		zap.Duration("poll_interval", s.config.Alert.PollInterval),
		zap.Int("workers", s.config.Alert.Workers),
	)

	ticker := time.NewTicker(s.config.Alert.PollInterval)
	defer ticker.Stop()

	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error("Failed to evaluate users on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("Failed to evaluate users", zap.Error(err))
			}
		}
	}
}

// Tick evaluates every current user once, all at the same reference time.
// Per-user failures are logged and counted; only listing users can fail the pass.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	referenceTS := s.now()
	observability.RecordSchedulerTick(referenceTS)

	users, err := s.users.ListCurrentUsers(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("failed to list users: %w", err)
	}

	result := TickResult{Users: len(users)}
	s.logger.Debug("Evaluating users", zap.Int("user_count", len(users)))

	batchSize := s.config.Alert.BatchSize
	for i := 0; i < len(users); i += batchSize {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		end := i + batchSize
		if end > len(users) {
			end = len(users)
		}

		alerted, failed := s.evaluateBatch(ctx, users[i:end], referenceTS)
		result.Alerted += alerted
		result.Failed += failed
	}

	s.logger.Info("Scheduler pass finished",
		zap.Int("users", result.Users),
		zap.Int("alerted", result.Alerted),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// evaluateBatch fans a batch out to the worker pool.
func (s *Scheduler) evaluateBatch(ctx context.Context, batch []models.User, referenceTS time.Time) (alerted, failed int) {
	workers := s.config.Alert.Workers
	if workers > len(batch) {
		workers = len(batch)
	}

	jobs := make(chan models.User)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				ok, err := s.evaluator.Evaluate(ctx, user.ID, referenceTS)
				mu.Lock()
				switch {
				case err != nil:
					failed++
				case ok:
					alerted++
				}
				mu.Unlock()
				if err != nil {
					s.logger.Error("Failed to evaluate user",
						zap.Int64("user_id", user.ID),
						zap.Error(err),
					)
				}
			}
		}()
	}

feed:
	for _, user := range batch {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- user:
		}
	}
	close(jobs)
	wg.Wait()
	return alerted, failed
}
