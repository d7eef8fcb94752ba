package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLM provider identifiers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection (task state store)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string

	// Web search
	TavilyAPIKey string

	// Pipeline defaults (per-job overrides allowed via the API)
	MaxSearchDepth     int
	NumberOfQueries    int
	MaxTokens          int
	SectionConcurrency int
	SourceCharBudget   int

	// Task state retention
	TaskRetention time.Duration

	// Server
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "inkwell"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "tasks"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     getEnv("INKWELL_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("INKWELL_LLM_MODEL", "llama3.1"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),

		MaxSearchDepth:     getEnvInt("INKWELL_MAX_SEARCH_DEPTH", 2),
		NumberOfQueries:    getEnvInt("INKWELL_QUERIES_PER_SECTION", 3),
		MaxTokens:          getEnvInt("INKWELL_MAX_TOKENS", 4096),
		SectionConcurrency: getEnvInt("INKWELL_SECTION_CONCURRENCY", 3),
		SourceCharBudget:   getEnvInt("INKWELL_SOURCE_CHAR_BUDGET", 4000),

		TaskRetention: getEnvDuration("INKWELL_TASK_RETENTION", 72*time.Hour),

		ServerPort: getEnv("INKWELL_SERVER_PORT", "8686"),

		LogFile:  getEnv("INKWELL_LOG_FILE", "/tmp/inkwell.log"),
		LogLevel: parseLogLevel(getEnv("INKWELL_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
