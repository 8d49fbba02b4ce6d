package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	Environment   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	MongoURI       string
	SharedDatabase string
	TenantPrefix   string

	CacheCapacity      int
	CacheIdleTTL       time.Duration
	CacheSweepInterval time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:               getEnv("DEALERDESK_ADDR", ":8080"),
		Environment:        getEnv("DEALERDESK_ENV", "dev"),
		JWTSigningKey:      getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:          getEnv("JWT_ISSUER", "http://localhost:8080"),
		JWTAudience:        getEnv("JWT_AUDIENCE", "dealerdesk-client"),
		MongoURI:           os.Getenv("MONGO_URI"),
		SharedDatabase:     getEnv("MONGO_SHARED_DB", "dealerdesk_main"),
		TenantPrefix:       getEnv("MONGO_TENANT_PREFIX", "dealerdesk_tenant_"),
		CacheCapacity:      getEnvInt("TENANT_CACHE_CAPACITY", 32),
		CacheIdleTTL:       getEnvDuration("TENANT_CACHE_IDLE_TTL", 10*time.Minute),
		CacheSweepInterval: getEnvDuration("TENANT_CACHE_SWEEP_INTERVAL", time.Minute),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
