package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration pulled from the environment so
// main stays lean.
type Server struct {
	Addr            string
	DatabaseURL     string
	Redis           RedisConfig
	JWTSigningKey   string
	JWTIssuer       string
	IdentityTTL     time.Duration
	BallotTokenTTL  time.Duration
	LockoutAttempts int
	LockoutWindow   time.Duration
}

// RedisConfig holds connection settings for the optional Redis backend.
// An empty URL means Redis is not configured and memory stores are used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("BALLOTBOX_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSigningKey:   jwtSigningKey,
		JWTIssuer:       envOr("JWT_ISSUER", "ballotbox"),
		IdentityTTL:     durationOr("IDENTITY_TOKEN_TTL", 168*time.Hour),
		BallotTokenTTL:  durationOr("BALLOT_TOKEN_TTL", 24*time.Hour),
		LockoutAttempts: intOr("LOCKOUT_ATTEMPTS", 5),
		LockoutWindow:   durationOr("LOCKOUT_WINDOW", 15*time.Minute),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
