package config

import (
	"os"
	"strconv"
	"time"
)

// Config gathers the pipeline settings read from env at startup. The
// surrounding application owns the poll schedule; everything here has a
// sane default so a bare .env with DB credentials is enough to run.
type Config struct {
	// Gateway polling
	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayAccount string
	PollInterval   time.Duration
	PollWindow     time.Duration
	PollTimeout    time.Duration

	// Reconcile queue
	QueueConcurrency  int
	QueueMaxAttempts  int
	QueueBackoffBase  time.Duration
	QueueBackoffCap   time.Duration
	QueueVisibility   time.Duration
	QueuePollInterval time.Duration

	// Event bus
	BusBuffer int
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		GatewayBaseURL: envStr("GATEWAY_BASE_URL", "http://localhost:9090"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		GatewayAccount: envStr("GATEWAY_ACCOUNT", "default"),
		PollInterval:   envDuration("POLL_INTERVAL", 30*time.Second),
		PollWindow:     envDuration("POLL_WINDOW", 15*time.Minute),
		PollTimeout:    envDuration("POLL_TIMEOUT", 20*time.Second),

		QueueConcurrency:  envInt("QUEUE_CONCURRENCY", 4),
		QueueMaxAttempts:  envInt("QUEUE_MAX_ATTEMPTS", 5),
		QueueBackoffBase:  envDuration("QUEUE_BACKOFF_BASE", 2*time.Second),
		QueueBackoffCap:   envDuration("QUEUE_BACKOFF_CAP", 5*time.Minute),
		QueueVisibility:   envDuration("QUEUE_VISIBILITY_TIMEOUT", 2*time.Minute),
		QueuePollInterval: envDuration("QUEUE_POLL_INTERVAL", time.Second),

		BusBuffer: envInt("BUS_BUFFER", 256),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
