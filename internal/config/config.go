// Package config reads the service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Search holds the service-wide search defaults. Tenants may override them.
type Search struct {
	Ceiling      int
	Workers      int
	Scorer       string
	ThrashFactor int
}

type Config struct {
	Port               string
	DatabaseURL        string
	DBMigrate          bool
	RedisURL           string
	RateRPS            float64
	RateBurst          int
	LogLevel           string
	LogFormat          string
	Search             Search
	WebhookMaxAttempts int
	TracesExporter     string // stdout or none
}

// FromEnv reads the process environment. Malformed numbers fall back to
// the defaults.
func FromEnv() Config { return fromLookup(os.LookupEnv) }

func fromLookup(lookup func(string) (string, bool)) Config {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	atoi := func(key string, def, min int) int {
		if n, err := strconv.Atoi(get(key, "")); err == nil && n >= min {
			return n
		}
		return def
	}
	rps := 20.0
	if f, err := strconv.ParseFloat(get("RATE_RPS", ""), 64); err == nil && f >= 0 {
		rps = f
	}
	return Config{
		Port:        get("PORT", "8080"),
		DatabaseURL: get("DATABASE_URL", ""),
		DBMigrate:   get("DB_MIGRATE", "true") != "false",
		RedisURL:    get("REDIS_URL", ""),
		RateRPS:     rps,
		RateBurst:   atoi("RATE_BURST", 40, 1),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogFormat:   get("LOG_FORMAT", "text"),
		Search: Search{
			Ceiling:      atoi("SEARCH_CEILING", 100000, 0),
			Workers:      atoi("SEARCH_WORKERS", 1, 1),
			Scorer:       get("SEARCH_SCORER", "discounted"),
			ThrashFactor: atoi("SEARCH_THRASH_FACTOR", 2, 0),
		},
		WebhookMaxAttempts: atoi("WEBHOOK_MAX_ATTEMPTS", 10, 1),
		TracesExporter:     get("OTEL_TRACES_EXPORTER", "none"),
	}
}

// Addr is the listen address for Port.
func (c Config) Addr() string { return ":" + c.Port }
