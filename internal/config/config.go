package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultQuery returns the most recent temperature row. The query is
// configuration: it must return exactly two columns, a float value and a
// timestamp.
const DefaultQuery = "SELECT temperature, reading_ts FROM sensor_readings ORDER BY reading_ts DESC LIMIT 1"

// Configuration errors
var (
	ErrThresholdRequired = errors.New("THRESHOLD is required")
	ErrDatabaseRequired  = errors.New("DATABASE_URL is required")
	ErrWebhookRequired   = errors.New("WEBHOOK_URL is required")
)

// Config holds the immutable runtime configuration for the monitor. It is
// built once at startup from environment variables; the core packages never
// read the environment themselves.
type Config struct {
	// Postgres connection string
	DatabaseURL string

	// Webhook endpoint for notifications
	WebhookURL string

	// Threshold in degrees; alert fires when a reading exceeds it
	Threshold float64

	// Margin below the threshold required before recovery is declared
	Hysteresis float64

	// Poll interval
	PollInterval time.Duration

	// SQL returning (temperature float, reading_ts timestamp)
	Query string

	// Optional sensor label used in messages
	SensorName string

	// Optional tz name for formatting timestamps in messages
	Timezone string

	// TLS verification for the outgoing webhook POST
	VerifyTLS bool

	// Webhook payload format: "card" (adaptive card) or "text" (flat JSON)
	WebhookFormat string

	// JSON key for the message in "text" format
	PayloadKey string

	// Suppress recovery notifications; state still flips internally
	OnAboveOnly bool

	// Kafka brokers (CSV); alert event stream disabled when empty
	KafkaBrokers []string

	// Kafka topic for alert events
	KafkaTopic string

	// Listen address for /metrics, /health and /status
	OpsAddr string

	// zerolog level
	LogLevel string

	thresholdSet bool
}

// Load builds a Config from the environment. A .env file is auto-loaded if
// present; ENV_PATH overrides its location. Malformed values are reported as
// errors so startup can fail fast.
func Load() (*Config, error) {
	if path := os.Getenv("ENV_PATH"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load env file %q: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		WebhookURL:    os.Getenv("WEBHOOK_URL"),
		Query:         getEnv("SQL_QUERY", DefaultQuery),
		SensorName:    os.Getenv("SENSOR_NAME"),
		Timezone:      os.Getenv("TIMEZONE"),
		WebhookFormat: getEnv("WEBHOOK_FORMAT", "card"),
		PayloadKey:    getEnv("PAYLOAD_KEY", "text"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "tempwatch.alerts"),
		OpsAddr:       getEnv("OPS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	var err error

	if raw := os.Getenv("THRESHOLD"); raw != "" {
		cfg.Threshold, err = strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid THRESHOLD %q: %w", raw, err)
		}
		cfg.thresholdSet = true
	}

	if cfg.Hysteresis, err = getEnvFloat("HYSTERESIS", 0.3); err != nil {
		return nil, err
	}

	pollSeconds, err := getEnvFloat("POLL_SECONDS", 10.0)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = time.Duration(pollSeconds * float64(time.Second))

	if cfg.VerifyTLS, err = getEnvBool("VERIFY_TLS", true); err != nil {
		return nil, err
	}

	if cfg.OnAboveOnly, err = getEnvBool("ON_ABOVE_ONLY", false); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}

// ValidateRun checks everything the monitoring loop needs.
func (c *Config) ValidateRun() error {
	if !c.thresholdSet {
		return ErrThresholdRequired
	}
	if c.DatabaseURL == "" {
		return ErrDatabaseRequired
	}
	if err := c.ValidateTest(); err != nil {
		return err
	}
	if c.Hysteresis < 0 {
		return fmt.Errorf("HYSTERESIS must be >= 0, got %v", c.Hysteresis)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_SECONDS must be > 0, got %v", c.PollInterval)
	}
	if c.WebhookFormat != "card" && c.WebhookFormat != "text" {
		return fmt.Errorf("WEBHOOK_FORMAT must be card or text, got %q", c.WebhookFormat)
	}
	return nil
}

// ValidateTest checks the subset needed to send a test notification.
func (c *Config) ValidateTest() error {
	if c.WebhookURL == "" {
		return ErrWebhookRequired
	}
	return nil
}

// Location resolves the configured timezone. Empty means system local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s %q: expected boolean", key, value)
	}
}
