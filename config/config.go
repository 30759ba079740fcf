package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob the server reads from the environment.
// Stripe price/limit pairs are configuration, never computed.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	StripeKey           string
	StripePriceIDPro    string
	StripeWebhookSecret string
	FrontendURL         string

	ClerkJWTKey        string
	ClerkWebhookSecret string

	OpenAIKey   string
	OpenAIModel string

	FreeGenerationsLimit int
	ProGenerationsLimit  int

	ToneCacheTTL time.Duration
}

// Load reads .env (if present) and builds the Config. Missing required
// values return an error rather than falling back silently.
func Load() (*Config, error) {
	// .env is optional in production, the platform injects env vars there.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		StripeKey:            os.Getenv("STRIPE_KEY"),
		StripePriceIDPro:     os.Getenv("STRIPE_PRICE_ID_PRO"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:3000"),
		ClerkJWTKey:          os.Getenv("CLERK_JWT_KEY"),
		ClerkWebhookSecret:   os.Getenv("CLERK_WEBHOOK_SECRET"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		FreeGenerationsLimit: getEnvInt("FREE_GENERATIONS_LIMIT", 5),
		ProGenerationsLimit:  getEnvInt("PRO_GENERATIONS_LIMIT", 50),
		ToneCacheTTL:         getEnvDuration("TONE_CACHE_TTL", 30*24*time.Hour),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
