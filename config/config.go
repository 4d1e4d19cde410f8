// config/config.go - Environment-backed service configuration
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Config collects every tunable the service needs. It is loaded once in
// main and handed to constructors, so nothing reads the environment after
// startup.
type Config struct {
	// Server
	Port   string
	AppEnv string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// Auth
	JWTSecret string

	// Session tokens (HMAC key for game server handoff)
	SessionSecret string

	// Mock allocator
	AllocatorHost     string
	AllocatorBasePort int

	// Background workers
	SweepInterval    time.Duration
	RankInterval     time.Duration
	ReadyCheckWindow time.Duration

	// CORS
	CORSOrigins string
}

// Load reads configuration from the environment. JWT_SECRET and
// SESSION_SECRET are required; everything else has a development default.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AppEnv:            getEnv("APP_ENV", "development"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		AllocatorHost:     getEnv("ALLOCATOR_HOST", "game.example.com"),
		AllocatorBasePort: getEnvInt("ALLOCATOR_BASE_PORT", 7777),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
		RankInterval:      getEnvDuration("RANK_INTERVAL", 5*time.Minute),
		ReadyCheckWindow:  getEnvDuration("READY_CHECK_WINDOW", 30*time.Second),
		CORSOrigins:       getEnv("CORS_ORIGINS", "http://localhost:3000"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable must be set")
	}

	if cfg.AppEnv == "production" && cfg.CORSOrigins == "http://localhost:3000" {
		log.Println("WARNING: CORS_ORIGINS not properly configured for production")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		log.Printf("Warning: invalid value for %s, using default %d", key, defaultVal)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		log.Printf("Warning: invalid value for %s, using default %s", key, defaultVal)
	}
	return defaultVal
}
