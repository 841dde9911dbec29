// Package config loads server configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	DatabasePath   string
	LogLevel       string
	CORSOrigins    []string
	LookupCacheTTL time.Duration
}

// Load reads an optional .env file, then the environment, then defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded, using environment and defaults")
	}

	cfg := &Config{
		Port:           getEnvInt("PORT", 8080),
		DatabasePath:   getEnv("DATABASE_PATH", "reconcile.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		LookupCacheTTL: 5 * time.Minute,
	}

	if raw := os.Getenv("LOOKUP_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			slog.Warn("invalid LOOKUP_CACHE_TTL, using default", "value", raw, "default", cfg.LookupCacheTTL)
		} else {
			cfg.LookupCacheTTL = ttl
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer setting, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
