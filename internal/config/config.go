// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage and session drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	CORSOrigins    []string
	StorageDriver  string
	DBPath         string
	SessionStore   string
	RedisURL       string
	SessionTTL     time.Duration
	Generation     GenerationConfig
	ChatRateLimit  int
	ChatRateWindow time.Duration
	// AnalyticsInterval of zero disables the rollup worker.
	AnalyticsInterval time.Duration
	TranscriptLog     TranscriptLogConfig
}

// GenerationConfig selects the text generation backend.
type GenerationConfig struct {
	Provider     string
	Model        string
	GoogleAPIKey string
	OpenAIAPIKey string
	Timeout      time.Duration
}

// TranscriptLogConfig controls NDJSON chat transcript logging.
type TranscriptLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	frontendURL := getEnv("FRONTEND_URL", "")
	cfg := &Config{
		Port:           getEnv("PORT", "5000"),
		FrontendURL:    frontendURL,
		CORSOrigins:    getEnvList("CORS_ORIGINS", defaultOrigins(frontendURL)),
		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageSQLite)),
		DBPath:         getEnv("DB_PATH", "./data/coworker.db"),
		SessionStore:   strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		ChatRateLimit:  getEnvInt("CHAT_RATE_LIMIT", 20),
		ChatRateWindow: getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		Generation: GenerationConfig{
			Provider:     strings.ToLower(getEnv("GENERATION_PROVIDER", "gemini")),
			Model:        getEnv("GENERATION_MODEL", ""),
			GoogleAPIKey: getEnv("GOOGLE_AI_API_KEY", ""),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			Timeout:      getEnvDuration("GENERATION_TIMEOUT", 30*time.Second),
		},
		AnalyticsInterval: getEnvDuration("ANALYTICS_INTERVAL", 15*time.Minute),
		TranscriptLog: TranscriptLogConfig{
			Enabled:   getEnvBool("TRANSCRIPT_LOG_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_LOG_DIR", "./data/logs/transcripts"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StorageDriver {
	case StorageSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageSQLite, StorageMemory, c.StorageDriver)
	}
	switch c.SessionStore {
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty when SESSION_STORE=redis")
		}
	case SessionStoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.SessionStore)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	switch c.Generation.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("GENERATION_PROVIDER must be \"gemini\" or \"openai\", got %q", c.Generation.Provider)
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be > 0")
	}
	if c.ChatRateLimit <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT must be > 0")
	}
	if c.ChatRateWindow <= 0 {
		return fmt.Errorf("CHAT_RATE_WINDOW must be > 0")
	}
	if c.AnalyticsInterval < 0 {
		return fmt.Errorf("ANALYTICS_INTERVAL cannot be negative")
	}
	if c.TranscriptLog.Enabled && c.TranscriptLog.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	if c.TranscriptLog.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func defaultOrigins(frontendURL string) []string {
	if frontendURL != "" {
		return []string{frontendURL}
	}
	return []string{"http://localhost:5000", "http://localhost:5173"}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
