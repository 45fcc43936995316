package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/morenopablo16/fitbit-project-sub000/internal/common/config"
	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
)

// Config alert service configuration
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Alert struct {
		// Timezone for reference dates and the waking window.
		Timezone string
		Location *time.Location

		// Scheduler
		PollInterval time.Duration
		Workers      int
		BatchSize    int

		// Evaluation request stream
		Stream        string
		ConsumerGroup string
		ConsumerName  string

		// Active alert cache
		Cache struct {
			KeyPrefix string
			TTL       time.Duration
		}

		// MQTT notifications
		Notify struct {
			TopicPrefix string
			MinPriority models.Priority
		}
	}

	Fitbit struct {
		APIURL       string
		TokenURL     string
		ClientID     string
		ClientSecret string
		Timeout      time.Duration

		// AES key (16, 24 or 32 bytes) encrypting stored OAuth tokens.
		TokenKey []byte
	}

	MetricsAddr string

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "wearables",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "fitbit-alerts",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Alert.Timezone = getEnv("ALERT_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(cfg.Alert.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_TIMEZONE %q: %w", cfg.Alert.Timezone, err)
	}
	cfg.Alert.Location = loc

	if cfg.Alert.PollInterval, err = getEnvDuration("ALERT_POLL_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Alert.Workers, err = getEnvInt("ALERT_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Alert.BatchSize, err = getEnvInt("ALERT_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.Alert.Workers < 1 || cfg.Alert.BatchSize < 1 {
		return nil, fmt.Errorf("ALERT_WORKERS and ALERT_BATCH_SIZE must be positive")
	}

	cfg.Alert.Stream = getEnv("ALERT_STREAM", "wearables:evaluate")
	cfg.Alert.ConsumerGroup = getEnv("ALERT_CONSUMER_GROUP", "alert-engine")
	cfg.Alert.ConsumerName = getEnv("ALERT_CONSUMER_NAME", "alert-engine-"+uuid.New().String()[:8])

	cfg.Alert.Cache.KeyPrefix = getEnv("ALERT_CACHE_PREFIX", "wearables:user:")
	if cfg.Alert.Cache.TTL, err = getEnvDuration("ALERT_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Alert.Notify.TopicPrefix = getEnv("ALERT_NOTIFY_TOPIC", "wearables/alerts")
	cfg.Alert.Notify.MinPriority = models.Priority(getEnv("ALERT_NOTIFY_MIN_PRIORITY", string(models.PriorityHigh)))
	if !cfg.Alert.Notify.MinPriority.Valid() {
		return nil, fmt.Errorf("invalid ALERT_NOTIFY_MIN_PRIORITY %q", cfg.Alert.Notify.MinPriority)
	}

	cfg.Fitbit.APIURL = getEnv("FITBIT_API_URL", "https://api.fitbit.com")
	cfg.Fitbit.TokenURL = getEnv("FITBIT_TOKEN_URL", "https://api.fitbit.com/oauth2/token")
	cfg.Fitbit.ClientID = getEnv("FITBIT_CLIENT_ID", "")
	cfg.Fitbit.ClientSecret = getEnv("FITBIT_CLIENT_SECRET", "")
	if cfg.Fitbit.Timeout, err = getEnvDuration("FITBIT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.Fitbit.TokenKey, err = getEnvKey("FITBIT_TOKEN_KEY"); err != nil {
		return nil, err
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9102")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, value)
	}
	return d, nil
}

// getEnvKey reads a required base64 AES key.
func getEnvKey(key string) ([]byte, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, fmt.Errorf("%s is required (base64 of a 16, 24 or 32 byte key)", key)
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	switch len(decoded) {
	case 16, 24, 32:
		return decoded, nil
	}
	return nil, fmt.Errorf("invalid %s: key is %d bytes, want 16, 24 or 32", key, len(decoded))
}
