package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	ServerPort   int
	DatabasePath string
	RulesPath    string

	PollInterval  time.Duration // worker loop tick
	RetryInterval time.Duration // retry scheduler tick
	BatchSize     int           // max unprocessed events per drain cycle

	MaxDeliveryAttempts int // dead-letter cutoff for the retry queue

	AlertRecipient string
	SMTPAddr       string // host:port, empty disables real delivery
	SMTPFrom       string

	DigestCron            string  // optional cron expression for summary digests
	DefaultScoreThreshold float64 // seed value when the rules document is first created
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, err
	}

	pollSecs, err := strconv.Atoi(getEnv("POLL_INTERVAL_SECONDS", "5"))
	if err != nil {
		return nil, err
	}

	retrySecs, err := strconv.Atoi(getEnv("RETRY_INTERVAL_SECONDS", "10"))
	if err != nil {
		return nil, err
	}

	batchSize, err := strconv.Atoi(getEnv("WORKER_BATCH_SIZE", "50"))
	if err != nil {
		return nil, err
	}

	maxAttempts, err := strconv.Atoi(getEnv("MAX_DELIVERY_ATTEMPTS", "8"))
	if err != nil {
		return nil, err
	}

	threshold, err := strconv.ParseFloat(getEnv("DEFAULT_SCORE_THRESHOLD", "0.8"), 64)
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerPort:            port,
		DatabasePath:          getEnv("DATABASE_PATH", "./sift.db"),
		RulesPath:             getEnv("RULES_PATH", "./rules.json"),
		PollInterval:          time.Duration(pollSecs) * time.Second,
		RetryInterval:         time.Duration(retrySecs) * time.Second,
		BatchSize:             batchSize,
		MaxDeliveryAttempts:   maxAttempts,
		AlertRecipient:        getEnv("ALERT_RECIPIENT", "alerts@localhost"),
		SMTPAddr:              getEnv("SMTP_ADDR", ""),
		SMTPFrom:              getEnv("SMTP_FROM", "sift@localhost"),
		DigestCron:            getEnv("DIGEST_CRON", ""),
		DefaultScoreThreshold: threshold,
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
