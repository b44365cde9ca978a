// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything main needs to wire the service.
// Values come from the environment, optionally seeded from a .env file.
type Config struct {
	Port           string
	DatabaseURL    string
	GatewayToken   string
	AllowedOrigins []string
	LogLevel       string
	WelcomeBonus   int64
	AccrualPolicy  string
	TiersFile      string
	RedisAddr      string
	RedisChannel   string
	SyncServiceURL string
	SyncInterval   time.Duration
	AuthServiceURL string
	ReconcileEvery time.Duration
	ReconcileBatch int
	R2             R2Config
}

// R2Config is the Cloudflare R2 (S3 compatible) bucket used for reward images.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough settings are present to build a client.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.Bucket != ""
}

// Load reads .env (if present) and the process environment.
// The returned bool is false when no .env file was found.
func Load() (*Config, bool, error) {
	envFileFound := godotenv.Load() == nil

	cfg := &Config{
		Port:           getEnv("PORT", "5200"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		GatewayToken:   os.Getenv("GATEWAY_SERVICE_TOKEN"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:9000")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AccrualPolicy:  getEnv("POINTS_ACCRUAL_POLICY", "per_ten"),
		TiersFile:      os.Getenv("TIERS_FILE"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisChannel:   getEnv("REDIS_TIER_CHANNEL", "membership:tier-changes"),
		SyncServiceURL: os.Getenv("SYNC_SERVICE_URL"),
		AuthServiceURL: os.Getenv("AUTH_SERVICE_URL"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, envFileFound, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.GatewayToken == "" {
		return nil, envFileFound, fmt.Errorf("GATEWAY_SERVICE_TOKEN environment variable not set")
	}

	var err error
	if cfg.WelcomeBonus, err = getInt64("WELCOME_BONUS_POINTS", 100); err != nil {
		return nil, envFileFound, err
	}
	if cfg.WelcomeBonus < 0 {
		return nil, envFileFound, fmt.Errorf("WELCOME_BONUS_POINTS must not be negative, got %d", cfg.WelcomeBonus)
	}
	if cfg.SyncInterval, err = getDuration("SYNC_INTERVAL", time.Minute); err != nil {
		return nil, envFileFound, err
	}
	if cfg.ReconcileEvery, err = getDuration("RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return nil, envFileFound, err
	}
	batch, err := getInt64("RECONCILE_BATCH", 500)
	if err != nil {
		return nil, envFileFound, err
	}
	cfg.ReconcileBatch = int(batch)

	return cfg, envFileFound, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

// splitList turns "a, b,c" into [a b c], dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
