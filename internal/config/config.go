package config

import (
	"os"
	"strconv"
	"time"
)

// Transport selects the relay implementation.
const (
	TransportRedis = "redis"
	TransportMQTT  = "mqtt"
	TransportNone  = "none"
)

type Config struct {
	Addr        string
	Scope       string
	Transport   string
	RedisURL    string
	MQTTBroker  string
	TokenSecret string
	TokenTTL    time.Duration
	CORSOrigin  string

	PromptBoxID   string
	FeedbackBoxID string
}

func Load() Config {
	return Config{
		Addr:        getenv("OVERLAY_ADDR", ":8788"),
		Scope:       getenv("OVERLAY_SCOPE", "classroom"),
		Transport:   getenv("OVERLAY_TRANSPORT", TransportRedis),
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),
		MQTTBroker:  getenv("MQTT_BROKER", "localhost:1883"),
		TokenSecret: getenv("OVERLAY_TOKEN_SECRET", "slateboard-dev-secret"),
		TokenTTL:    time.Duration(getenvInt("OVERLAY_TOKEN_TTL_SECONDS", 14400)) * time.Second,
		CORSOrigin:  getenv("OVERLAY_CORS_ORIGIN", "*"),

		PromptBoxID:   getenv("OVERLAY_PROMPT_BOX_ID", "shared-prompt"),
		FeedbackBoxID: getenv("OVERLAY_FEEDBACK_BOX_ID", "local-feedback"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
