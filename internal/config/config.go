package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL string
	RedisURL    string
	ServerAddr  string

	// StoreBackend selects the realtime store: "redis" or "memory".
	StoreBackend string

	// ScreenExpression optionally gates requester browsing, e.g.
	// "available == true && rating >= 4". Empty admits all candidates.
	ScreenExpression string

	// RequestAbandonTTL is how long an untouched pending request slot stays
	// authoritative before providers may treat it as abandoned.
	RequestAbandonTTL time.Duration
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "fieldmatch")
		pass := getenv("POSTGRES_PASSWORD", "fieldmatch_pass")
		db := getenv("POSTGRES_DB", "fieldmatch")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	backend := getenv("STORE_BACKEND", "redis")
	if backend != "redis" && backend != "memory" {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", backend)
	}

	return &Config{
		DatabaseURL:       dsn,
		RedisURL:          getenv("REDIS_URL", "redis://localhost:6379/0"),
		ServerAddr:        getenv("SERVER_ADDR", "0.0.0.0:8080"),
		StoreBackend:      backend,
		ScreenExpression:  os.Getenv("SCREEN_EXPRESSION"),
		RequestAbandonTTL: parseDuration(getenv("REQUEST_ABANDON_TTL", "10m"), 10*time.Minute),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
