package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the Quillcast server.
type Config struct {
	DatabaseURL    string
	DBPath         string
	ServerPort     int
	LogLevel       string
	LLMEndpoint    string
	LLMAPIKey      string
	LLMModels      []string
	SentryDSN      string
	Environment    string
	ShutdownGrace  time.Duration
	RateLimit      RateLimit
	BootstrapName  string
	BootstrapEmail string
}

// RateLimit configures the per-client request limiter.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

const (
	defaultDBPath        = "./data/quillcast.db"
	defaultServerPort    = 8080
	defaultLogLevel      = "info"
	defaultShutdownGrace = 10 * time.Second
	defaultRatePerSecond = 2.0
	defaultRateBurst     = 10
	defaultRateClientTTL = 5 * time.Minute
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBPath:         getEnv("DB_PATH", defaultDBPath),
		LogLevel:       getEnv("LOG_LEVEL", defaultLogLevel),
		LLMEndpoint:    os.Getenv("LLM_ENDPOINT"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		SentryDSN:      os.Getenv("SENTRY_DSN"),
		Environment:    os.Getenv("ENV"),
		BootstrapName:  getEnv("BOOTSTRAP_ACCOUNT_NAME", "Quillcast Admin"),
		BootstrapEmail: os.Getenv("BOOTSTRAP_ACCOUNT_EMAIL"),
		ShutdownGrace:  defaultShutdownGrace,
		RateLimit: RateLimit{
			RequestsPerSecond: defaultRatePerSecond,
			Burst:             defaultRateBurst,
			ClientTTL:         defaultRateClientTTL,
		},
	}

	if modelsJSON := os.Getenv("LLM_MODELS"); modelsJSON != "" {
		models, err := parseModels(modelsJSON)
		if err != nil {
			return nil, eris.Wrap(err, "parsing LLM_MODELS")
		}
		cfg.LLMModels = models
	}

	portValue := getEnv("SERVER_PORT", strconv.Itoa(defaultServerPort))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid SERVER_PORT value: %s", portValue)
	}
	cfg.ServerPort = port

	if rateValue := os.Getenv("RATE_LIMIT_PER_SECOND"); rateValue != "" {
		rate, err := strconv.ParseFloat(rateValue, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid RATE_LIMIT_PER_SECOND value: %s", rateValue)
		}
		cfg.RateLimit.RequestsPerSecond = rate
	}

	if burstValue := os.Getenv("RATE_LIMIT_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid RATE_LIMIT_BURST value: %s", burstValue)
		}
		cfg.RateLimit.Burst = burst
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseModels(raw string) ([]string, error) {
	// Accept either a JSON array of strings or an object with a `models` field.
	var arrayInput []string
	if err := json.Unmarshal([]byte(raw), &arrayInput); err == nil {
		return arrayInput, nil
	}

	var objectInput struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal([]byte(raw), &objectInput); err != nil {
		return nil, eris.Wrap(err, "decoding JSON")
	}

	if len(objectInput.Models) == 0 {
		return nil, eris.New("models list is empty")
	}

	return objectInput.Models, nil
}
