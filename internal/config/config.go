package config

import (
	"os"
	"strconv"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port           string
	PostgresDSN    string
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RedisPassword  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	SearchAPIKey   string
	SearchEngineID string
	GeminiAPIKey   string
	GeminiModel    string

	// RequestsPerMinute caps research requests per client IP.
	RequestsPerMinute int

	SessionSecret string
}

func Load() *Config {
	return &Config{
		Port:           getenv("PORT", "8080"),
		PostgresDSN:    getenv("POSTGRES_DSN", ""),
		MongoURI:       getenv("MONGO_URI", ""),
		MongoDB:        getenv("MONGO_DB", "researchdesk"),
		RedisAddr:      getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "report-artifacts"),
		MinioUseSSL:    getenv("MINIO_USE_SSL", "false") == "true",

		SearchAPIKey:   getenv("SEARCH_API_KEY", ""),
		SearchEngineID: getenv("SEARCH_ENGINE_ID", ""),
		GeminiAPIKey:   getenv("GEMINI_API_KEY", ""),
		GeminiModel:    getenv("GEMINI_MODEL", "gemini-2.5-flash"),

		RequestsPerMinute: getenvInt("REQUESTS_PER_MINUTE", 30),

		SessionSecret: getenv("SESSION_SECRET", ""),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
