package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool

	DatabaseURL string
	RedisURL    string

	LLMProvider       string
	LLMModel          string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OllamaHost        string
	LLMMaxTokens      int
	LLMTemperature    float32
	LLMRatePerSecond  float64
	LLMBurst          int
	LLMMaxAttempts    int
	LLMRetryBaseDelay time.Duration
	LLMRetryMaxDelay  time.Duration

	MaxFileSizeBytes     int64
	MaxSessionBytes      int64
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	EventBufferSize       int
	FrameworkConcurrency  int
	ExtractionConcurrency int
	FrameworkWeights      string
	ChatHistoryWindow     int

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3001")),
		Env:             env,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getEnv("MINIO_BUCKET", "vendorsec"),
		MinioUseSSL:     getBool("MINIO_USE_SSL", false),

		DatabaseURL: dbURL,
		RedisURL:    getEnv("REDIS_URL", ""),

		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:          getEnv("LLM_MODEL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),
		LLMMaxTokens:      getInt("LLM_MAX_TOKENS", 4096),
		LLMTemperature:    float32(getFloat("LLM_TEMPERATURE", 0.3)),
		LLMRatePerSecond:  getFloat("LLM_RATE_PER_SECOND", 2),
		LLMBurst:          getInt("LLM_BURST", 4),
		LLMMaxAttempts:    getInt("LLM_MAX_ATTEMPTS", 3),
		LLMRetryBaseDelay: getDuration("LLM_RETRY_BASE_DELAY", 2*time.Second),
		LLMRetryMaxDelay:  getDuration("LLM_RETRY_MAX_DELAY", 60*time.Second),

		MaxFileSizeBytes:     int64(getInt("MAX_FILE_SIZE_MB", 100)) << 20,
		MaxSessionBytes:      int64(getInt("MAX_SESSION_SIZE_MB", 500)) << 20,
		SessionTTL:           getDuration("SESSION_TTL", 24*time.Hour),
		SessionSweepInterval: getDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),

		EventBufferSize:       getInt("EVENT_BUFFER_SIZE", 64),
		FrameworkConcurrency:  getInt("FRAMEWORK_CONCURRENCY", 2),
		ExtractionConcurrency: getInt("EXTRACTION_CONCURRENCY", 2),
		FrameworkWeights:      getEnv("FRAMEWORK_WEIGHTS", ""),
		ChatHistoryWindow:     getInt("CHAT_HISTORY_WINDOW", 10),

		RateLimitRequests: getInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getDuration("RATE_LIMIT_WINDOW", 60*time.Second),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return v
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		log.Printf("invalid %s=%q, using default %v", key, raw, def)
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Printf("invalid %s=%q, using default %s", key, raw, def)
		return def
	}
	return v
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}
