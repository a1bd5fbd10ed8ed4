package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration. It is constructed once in main and
// passed into the components that need it; there are no package-level
// settings singletons.
type Config struct {
	Port        string
	DatabaseURL string
	Environment string

	OpenAIAPIKey string
	ChatModel    string
	RiskModel    string

	// Per-session cap on patient messages.
	MessageCap int

	// Upper bound on a single secondary-classifier call.
	ClassifierTimeout time.Duration
	// Upper bound on a single generation call.
	GenerationTimeout time.Duration

	// Default country for crisis resource localization.
	DefaultCountry string

	// Optional override for the embedded safety-rules artifact.
	SafetyRulesFile string

	// Postgres NOTIFY channel for therapist risk alerts.
	RiskAlertChannel string
}

// Load reads configuration from environment variables, falling back to
// development defaults for everything except DATABASE_URL, which the caller
// must check.
func Load() Config {
	return Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		ChatModel:         getEnv("OPENAI_MODEL_CHAT", "gpt-4o-mini"),
		RiskModel:         getEnv("OPENAI_MODEL_RISK", "gpt-4o-mini"),
		MessageCap:        getEnvAsInt("MESSAGE_CAP", 50),
		ClassifierTimeout: time.Duration(getEnvAsInt("RISK_CLASSIFIER_TIMEOUT_SECONDS", 20)) * time.Second,
		GenerationTimeout: time.Duration(getEnvAsInt("GENERATION_TIMEOUT_SECONDS", 60)) * time.Second,
		DefaultCountry:    getEnv("DEFAULT_COUNTRY", "US"),
		SafetyRulesFile:   os.Getenv("SAFETY_RULES_FILE"),
		RiskAlertChannel:  getEnv("RISK_ALERT_CHANNEL", "risk_alerts"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
