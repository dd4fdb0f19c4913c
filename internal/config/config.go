package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application runtime configuration.
type Config struct {
	Env             string
	HTTPPort        string
	DatabaseURL     string
	JWTSecret       string
	DefaultCurrency string

	// Auto-release TTLs by occupation source. TLM holds never expire unless
	// the occupy request carried an explicit duration.
	TLLReleaseTTL     time.Duration
	OrderReleaseTTL   time.Duration
	ReconcileInterval time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads environment variables and .env (if present).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		DefaultCurrency:   getEnv("CURRENCY_CODE", "KRW"),
		TLLReleaseTTL:     getDuration("TLL_RELEASE_TTL", 2*time.Minute),
		OrderReleaseTTL:   getDuration("ORDER_RELEASE_TTL", 3*time.Minute),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 1*time.Minute),
		ReadTimeout:       getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}
