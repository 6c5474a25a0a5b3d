// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config collects the environment-driven settings shared by the cmds.
// godotenv.Load() in each main makes a local .env file visible here.
type Config struct {
	Port string

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	PollInterval time.Duration
	PollTimeout  time.Duration

	BatchSize int

	AMQPURL    string
	EventTopic string
}

// Load reads the environment and fills in defaults.
func Load() Config {
	return Config{
		Port:            envOr("PORT", "8080"),
		ProviderBaseURL: envOr("PROVIDER_BASE_URL", "http://localhost:9090"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),
		ProviderTimeout: envDuration("PROVIDER_TIMEOUT", 30*time.Second),
		PollInterval:    envDuration("POLL_INTERVAL", 2*time.Second),
		PollTimeout:     envDuration("POLL_TIMEOUT", 10*time.Second),
		BatchSize:       envInt("BATCH_SIZE", 50),
		AMQPURL:         os.Getenv("AMQP_URL"),
		EventTopic:      envOr("EVENT_TOPIC", "bulk_send_events"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
