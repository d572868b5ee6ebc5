package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries all runtime settings for the sync daemon.
type Config struct {
	// External collaborators.
	APIBaseURL string
	PushURL    string
	AuthToken  string

	// The account this daemon syncs on behalf of.
	ViewerID string

	// Local HTTP surface.
	Port       string
	LocalToken string

	// Reconnect policy and room-join acknowledgment wait.
	ReconnectMaxAttempts uint64
	JoinAckTimeout       time.Duration

	// Optional infrastructure.
	AMQPURL      string
	AMQPExchange string
	CacheDSN     string
	OTLPEndpoint string
	Environment  string
}

// Load reads settings from the environment with development defaults.
func Load() Config {
	return Config{
		APIBaseURL:           getEnv("API_BASE_URL", "http://localhost:5000"),
		PushURL:              getEnv("WS_URL", "ws://localhost:5000/ws"),
		AuthToken:            getEnv("AUTH_TOKEN", ""),
		ViewerID:             getEnv("VIEWER_ID", ""),
		Port:                 getEnv("PORT", "8086"),
		LocalToken:           getEnv("LOCAL_TOKEN", ""),
		ReconnectMaxAttempts: getEnvUint("RECONNECT_MAX_ATTEMPTS", 6),
		JoinAckTimeout:       getEnvDuration("JOIN_ACK_TIMEOUT", 5*time.Second),
		AMQPURL:              getEnv("AMQP_URL", ""),
		AMQPExchange:         getEnv("AMQP_EXCHANGE", "casechat.events"),
		CacheDSN:             getEnv("CACHE_DSN", ""),
		OTLPEndpoint:         getEnv("OTLP_ENDPOINT", ""),
		Environment:          getEnv("ENVIRONMENT", "development"),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvUint(key string, fallback uint64) uint64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseUint(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
