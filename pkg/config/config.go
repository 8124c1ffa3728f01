package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/BenjaminJSLee/tinyapp/pkg/logging"
)

// AuthMode selects how the current identity travels between requests.
const (
	AuthModeSession = "session" // opaque id cookie + server-side session store
	AuthModeCookie  = "cookie"  // self-contained signed JWT cookie
)

type Config struct {
	Addr        string
	BaseURL     string
	DatabaseURL string // empty = in-memory stores
	RedisURL    string // empty = in-memory sessions and visitor markers
	AuthMode    string
	JWTSecret   string
	SessionTTL  time.Duration
	LogLevel    logging.LogLevel
	CSRFEnabled bool
}

func Load() *Config {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	return &Config{
		Addr:        getEnv("ADDR", ":8080"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		AuthMode:    getEnv("AUTH_MODE", AuthModeSession),
		JWTSecret:   getEnv("JWT_SECRET", "dev-secret-change-me"),
		SessionTTL:  getDuration("SESSION_TTL", 24*time.Hour),
		LogLevel:    logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		CSRFEnabled: getEnv("CSRF_ENABLED", "") == "true",
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
