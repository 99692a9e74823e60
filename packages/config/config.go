// Package config
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	FeedURL     string
	PolicyFile  string

	ScanInterval    time.Duration
	ScanPageTimeout time.Duration
	QueueSize       int
	StatsEvery      int

	// Rate limits
	MaxPostsPerDay    int
	MinInterPostDelay time.Duration
	MaxInterPostDelay time.Duration

	// Feature flags
	AIGeneration     bool
	ImageAttachments bool

	// Browser
	Headless       bool
	UserDataDir    string
	CookieFile     string
	LoginEmail     string
	LoginPassword  string
	SessionRetries int
	SessionBackoff time.Duration

	// AI
	GeminiAPIKey string

	// Logging
	LogFile  string
	LogLevel string

	// Metrics
	MetricsAddr string

	// Redis (duplicate guard)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SeenSetKey    string
}

func Load() (Config, error) {
	cfg := Config{}
	var missingVars []string

	cfg.FeedURL = getEnv("FEED_URL", "")
	cfg.PolicyFile = getEnv("POLICY_FILE", "")

	if cfg.FeedURL == "" {
		missingVars = append(missingVars, "FEED_URL")
	}
	if cfg.PolicyFile == "" {
		missingVars = append(missingVars, "POLICY_FILE")
	}
	if len(missingVars) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")

	var err error
	cfg.ScanInterval, err = time.ParseDuration(getEnv("SCAN_INTERVAL", "90s"))
	if err != nil {
		slog.Warn("Invalid SCAN_INTERVAL", "value", getEnv("SCAN_INTERVAL", "90s"), "error", err)
		cfg.ScanInterval = 90 * time.Second
	}
	cfg.ScanPageTimeout, _ = time.ParseDuration(getEnv("SCAN_PAGE_TIMEOUT", "45s"))
	cfg.QueueSize, _ = strconv.Atoi(getEnv("QUEUE_SIZE", "64"))
	cfg.StatsEvery, _ = strconv.Atoi(getEnv("STATS_EVERY", "10"))

	cfg.MaxPostsPerDay, _ = strconv.Atoi(getEnv("MAX_POSTS_PER_DAY", "15"))
	cfg.MinInterPostDelay, _ = time.ParseDuration(getEnv("MIN_INTER_POST_DELAY", "4m"))
	cfg.MaxInterPostDelay, _ = time.ParseDuration(getEnv("MAX_INTER_POST_DELAY", "12m"))

	cfg.AIGeneration = getEnvBool("AI_GENERATION", false)
	cfg.ImageAttachments = getEnvBool("IMAGE_ATTACHMENTS", false)

	cfg.Headless = getEnvBool("HEADLESS", true)
	cfg.UserDataDir = getEnv("USER_DATA_DIR", "data/profiles")
	cfg.CookieFile = getEnv("COOKIE_FILE", "")
	cfg.LoginEmail = getEnv("LOGIN_EMAIL", "")
	cfg.LoginPassword = getEnv("LOGIN_PASSWORD", "")
	cfg.SessionRetries, _ = strconv.Atoi(getEnv("SESSION_RETRIES", "3"))
	cfg.SessionBackoff, _ = time.ParseDuration(getEnv("SESSION_BACKOFF", "10s"))

	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	if cfg.AIGeneration && cfg.GeminiAPIKey == "" {
		slog.Warn("AI_GENERATION enabled without GEMINI_API_KEY; falling back to templates")
		cfg.AIGeneration = false
	}

	cfg.LogFile = getEnv("LOG_FILE", "logs/bot.log")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "0.0.0.0:9094")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, _ = strconv.Atoi(getEnv("REDIS_DB", "0"))
	cfg.SeenSetKey = getEnv("SEEN_SET_KEY", "commentbot:seen_posts")

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid boolean environment variable", "key", key, "value", value)
		return defaultVal
	}
	return parsed
}
