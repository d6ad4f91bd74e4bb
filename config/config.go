package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache / ledger
	RedisAddr string

	// Providers
	OpenAIAPIKey    string
	AnthropicAPIKey string
	DashScopeAPIKey string

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitTPM int64 // tokens per minute, default: 100000

	// Budget tables. When empty, compiled-in defaults are used.
	RateTablePath string
	TierTablePath string

	// Cascade
	ProviderTimeout  time.Duration // per provider call, default: 60s
	CascadeWallClock time.Duration // 0 disables the overall budget
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		DashScopeAPIKey:      os.Getenv("DASHSCOPE_API_KEY"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		RateTablePath:        os.Getenv("RATE_TABLE_PATH"),
		TierTablePath:        os.Getenv("TIER_TABLE_PATH"),
	}

	// Rate Limiting Default
	tpmStr := getEnv("DEFAULT_RATE_LIMIT_TPM", "100000")
	tpm, err := strconv.ParseInt(tpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_TPM: %w", err)
	}
	cfg.DefaultRateLimitTPM = tpm

	cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.CascadeWallClock, err = getDuration("CASCADE_WALL_CLOCK_SECONDS", 0)
	if err != nil {
		return nil, err
	}

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallbackSecs int64) (time.Duration, error) {
	raw := getEnv(key, strconv.FormatInt(fallbackSecs, 10))
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
