package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/common/logger"
	"github.com/morenopablo16/fitbit-project-sub000/internal/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/repository"
	"github.com/morenopablo16/fitbit-project-sub000/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "fitbit-alerts"

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Wearable telemetry alert engine",
	Long: `fitbit-alerts evaluates Fitbit telemetry against each user's own baseline
and raises alerts for caregivers.

COMMANDS:

  serve      Run the scheduler, the evaluation stream consumer and notifications
  evaluate   Evaluate one user at a reference time
  ingest     Pull a day of Fitbit data into the store
  export     Write alerts to an XLSX workbook
  ack        Acknowledge an alert

Configuration is read from the environment (DB_*, REDIS_*, MQTT_*, ALERT_*,
FITBIT_*, LOG_LEVEL, LOG_FORMAT, METRICS_ADDR).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log, err = logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if log != nil {
			_ = log.Sync()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newAlertService(ctx context.Context) (*service.AlertService, error) {
	svc, err := service.NewAlertService(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert service: %w", err)
	}
	return svc, nil
}

type userGetter interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// requireUser rejects ids with no user instance.
func requireUser(ctx context.Context, users userGetter, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("--user is required")
	}
	user, err := users.GetUser(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("unknown user %d", id)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// parseTime accepts RFC3339 or a local YYYY-MM-DD date; empty means now.
func parseTime(value string, loc *time.Location, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (use RFC3339 or YYYY-MM-DD)", value)
	}
	return t, nil
}
