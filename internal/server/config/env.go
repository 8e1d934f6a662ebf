package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays cfg with environment variables, loading a .env file
// first when one exists. A missing .env is not an error; containers usually
// inject the environment directly.
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("QUIETLOG_ADDR"); v != "" {
		cfg.EndpointAddr = v
	}
	if v := os.Getenv("QUIETLOG_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("QUIETLOG_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("QUIETLOG_JWT_SECRET"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("QUIETLOG_ACCESS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AccessTokenValidityDuration = d
		}
	}
	if v := os.Getenv("QUIETLOG_REFRESH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RefreshTokenValidityDuration = d
		}
	}
}
