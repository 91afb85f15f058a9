package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	// History settings
	HistoryDriver string // file | sqlite | postgres
	HistoryPath   string // file and sqlite location
	DatabaseURL   string // postgres DSN
	RetentionDays int

	// Duplicate detection
	SimilarityEnabled   bool
	SimilarityThreshold float64
	SimilarityMaxBatch  int // 0 = never disable the similarity tier

	// Sources
	SourcesConfigPath  string
	FetchConcurrency   int
	FetchRatePerSecond float64

	// Telegram settings
	TelegramToken  string
	TelegramChatID string

	// Categorization settings
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string // any OpenAI compatible endpoint
	MaxAIRequests int    // per day, 0 = unlimited

	// Title translation, display only
	TranslateSources  []string // source ids whose titles are translated
	TranslateLanguage string

	// App settings
	Debug          bool
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// Monitoring
	EnableMonitoring bool
	MonitoringPort   string
}

// Load reads .env when present, then the environment, and validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HistoryDriver:       DriverFile,
		RetentionDays:       30,
		SimilarityEnabled:   true,
		SimilarityThreshold: 0.8,
		SourcesConfigPath:   "configs/sources.yaml",
		FetchConcurrency:    4,
		FetchRatePerSecond:  2,
		GeminiModel:         "gemini-1.5-flash",
		OpenAIModel:         "gpt-4o-mini",
		MaxAIRequests:       3,
		TranslateSources:    []string{"hackernews"},
		TranslateLanguage:   "Chinese",
		LogLevel:            "info",
		LogFormat:           "text",
		RequestTimeout:      30 * time.Second,
		RetryAttempts:       3,
		RetryDelay:          2 * time.Second,
		MonitoringPort:      "8080",
	}

	cfg.HistoryDriver = strings.ToLower(getEnvOrDefault("HISTORY_DRIVER", cfg.HistoryDriver))
	cfg.HistoryPath = getEnvOrDefault("HISTORY_PATH", DefaultHistoryPath(cfg.HistoryDriver))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RetentionDays = getEnvIntOrDefault("HISTORY_RETENTION_DAYS", cfg.RetentionDays)

	cfg.SimilarityEnabled = getEnvBoolOrDefault("DEDUP_SIMILARITY", cfg.SimilarityEnabled)
	cfg.SimilarityThreshold = getEnvFloatOrDefault("DEDUP_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.SimilarityMaxBatch = getEnvIntOrDefault("DEDUP_SIMILARITY_MAX_BATCH", cfg.SimilarityMaxBatch)

	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG", cfg.SourcesConfigPath)
	cfg.FetchConcurrency = getEnvIntOrDefault("FETCH_CONCURRENCY", cfg.FetchConcurrency)
	cfg.FetchRatePerSecond = getEnvFloatOrDefault("FETCH_RATE_PER_SECOND", cfg.FetchRatePerSecond)

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.MaxAIRequests = getEnvIntOrDefault("MAX_AI_REQUESTS", cfg.MaxAIRequests)
	cfg.TranslateSources = getEnvListOrDefault("TRANSLATE_SOURCES", cfg.TranslateSources)
	cfg.TranslateLanguage = getEnvOrDefault("TRANSLATE_LANGUAGE", cfg.TranslateLanguage)

	cfg.Debug = os.Getenv("DEBUG") == "true"
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.RequestTimeout = time.Duration(getEnvIntOrDefault("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryDelay = time.Duration(getEnvIntOrDefault("RETRY_DELAY_SECONDS", 2)) * time.Second

	cfg.EnableMonitoring = getEnvBoolOrDefault("ENABLE_HTTP_MONITORING", false)
	cfg.MonitoringPort = getEnvOrDefault("MONITORING_PORT", cfg.MonitoringPort)

	return cfg, cfg.Validate()
}

// DefaultHistoryPath places the history under the XDG data directory.
func DefaultHistoryPath(driver string) string {
	name := "push_history.json"
	if driver == DriverSQLite {
		name = "push_history.db"
	}
	return filepath.Join(xdg.DataHome, "hotpush", name)
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvListOrDefault reads a comma separated list. "none" yields an empty list.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if strings.EqualFold(value, "none") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	switch c.HistoryDriver {
	case DriverFile, DriverSQLite:
		if c.HistoryPath == "" {
			return fmt.Errorf("HISTORY_PATH is required for the %s driver", c.HistoryDriver)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("HISTORY_DRIVER must be 'file', 'sqlite' or 'postgres', got %q", c.HistoryDriver)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must not be negative")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("DEDUP_SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.SimilarityThreshold)
	}
	if c.SimilarityMaxBatch < 0 {
		return fmt.Errorf("DEDUP_SIMILARITY_MAX_BATCH must not be negative")
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be at least 1")
	}
	if c.FetchRatePerSecond <= 0 {
		return fmt.Errorf("FETCH_RATE_PER_SECOND must be positive")
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}
