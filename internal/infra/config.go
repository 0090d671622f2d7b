package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// fanoutWriteMargin is the time reserved after the fan-out deadline for
// storing the session and writing the response.
const fanoutWriteMargin = 15 * time.Second

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIOrg     string

	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiImageModel  string
	GeminiMasterModel string

	HighQualityProvider string
	FastProvider        string
	FastModel           string

	ProviderTimeout         time.Duration
	RetryMaxAttempts        int
	RetryStep               time.Duration
	BreakerFailureThreshold int
	MaxConcurrentFormats    int

	// FanoutTimeout bounds one generation request. It stays below
	// HTTPWriteTimeout so the partial result can still be written.
	FanoutTimeout time.Duration

	HistoryLimit int
	MaxUploadMB  int

	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-image-1"),
		OpenAIOrg:     os.Getenv("OPENAI_ORG"),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiMasterModel: getEnv("GEMINI_MASTER_MODEL", "gemini-2.0-flash-exp"),

		HighQualityProvider: strings.ToLower(getEnv("HQ_PROVIDER", "openai")),
		FastProvider:        strings.ToLower(getEnv("FAST_PROVIDER", "gemini")),
		FastModel:           os.Getenv("FAST_MODEL"),

		ProviderTimeout:         time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 120)),
		RetryMaxAttempts:        getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryStep:               time.Second * time.Duration(getEnvInt("RETRY_STEP_SECONDS", 2)),
		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 8),
		MaxConcurrentFormats:    getEnvInt("MAX_CONCURRENT_FORMATS", 4),

		HistoryLimit: getEnvInt("HISTORY_LIMIT", 10),
		MaxUploadMB:  getEnvInt("MAX_UPLOAD_MB", 25),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.HighQualityProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("HQ_PROVIDER must be openai or gemini, got %q", cfg.HighQualityProvider)
	}
	switch cfg.FastProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("FAST_PROVIDER must be openai or gemini, got %q", cfg.FastProvider)
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.HTTPWriteTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_WRITE_TIMEOUT_SECONDS must be positive")
	}
	cfg.FanoutTimeout = time.Second * time.Duration(getEnvInt("FANOUT_TIMEOUT_SECONDS", 0))
	if cfg.FanoutTimeout <= 0 {
		cfg.FanoutTimeout = cfg.HTTPWriteTimeout - min(fanoutWriteMargin, cfg.HTTPWriteTimeout/4)
	}
	if cfg.FanoutTimeout >= cfg.HTTPWriteTimeout {
		return nil, fmt.Errorf("FANOUT_TIMEOUT_SECONDS (%s) must be below HTTP_WRITE_TIMEOUT_SECONDS (%s)", cfg.FanoutTimeout, cfg.HTTPWriteTimeout)
	}
	if cfg.MaxConcurrentFormats < 1 {
		cfg.MaxConcurrentFormats = 1
	}
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = 10
	}

	return cfg, nil
}

// AllowsSyntheticProviders reports whether missing provider keys may fall back
// to the offline generator.
func (c *Config) AllowsSyntheticProviders() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
