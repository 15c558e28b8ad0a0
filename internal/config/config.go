package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CONDUCTOR_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CONDUCTOR_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intOr("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, gemini, cerebras, mock
func LLMProvider() string {
	return stringOr("LLM_PROVIDER", "openai")
}

// LLMModel returns an optional model override for the LLM provider.
// Empty means the provider's default model.
func LLMModel() string {
	return os.Getenv("LLM_MODEL")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, gemini, mock
func EmbeddingProvider() string {
	return stringOr("EMBEDDING_PROVIDER", "openai")
}

// EmbeddingModel returns an optional embedding model override. The model
// must support 1536-dimension output.
func EmbeddingModel() string {
	return os.Getenv("EMBEDDING_MODEL")
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "gemini":
		return GeminiAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// MatchSimilarityThreshold is the minimum cosine similarity for a guideline
// to become a candidate. Defaults to 0.3.
func MatchSimilarityThreshold() float32 {
	v, err := strconv.ParseFloat(os.Getenv("MATCH_SIMILARITY_THRESHOLD"), 32)
	if err != nil || v < 0 || v > 1 {
		return 0.3
	}
	return float32(v)
}

// MatchMaxCandidates caps the number of candidates per turn. Defaults to 10.
func MatchMaxCandidates() int {
	return intOr("MATCH_MAX_CANDIDATES", 10)
}

// MatchHistoryTurns is how many recent messages the classifier sees.
// Defaults to 3.
func MatchHistoryTurns() int {
	return intOr("MATCH_HISTORY_TURNS", 3)
}

// SupervisionMode returns "rewrite" or "validate". Defaults to "rewrite".
func SupervisionMode() string {
	return stringOr("SUPERVISION_MODE", "rewrite")
}

// SessionBackend returns where sessions are stored.
// Valid values: postgres, redis, memory. Defaults to "postgres".
func SessionBackend() string {
	return stringOr("SESSION_BACKEND", "postgres")
}

// SessionCacheTTL is the read-through cache TTL for sessions. Defaults to 30m.
func SessionCacheTTL() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SESSION_CACHE_TTL"))
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

func RedisURL() string {
	return os.Getenv("REDIS_URL")
}

// NATSURL returns the NATS server URL. Event publishing is disabled when empty.
func NATSURL() string {
	return os.Getenv("NATS_URL")
}

// EmbeddingBackfillSchedule is the cron spec for the embedding backfill job.
func EmbeddingBackfillSchedule() string {
	return stringOr("EMBEDDING_BACKFILL_SCHEDULE", "@every 5m")
}

// APIKeys returns the accepted bearer keys. Auth is disabled when empty.
func APIKeys() []string {
	var keys []string
	for _, k := range strings.Split(os.Getenv("API_KEYS"), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func MigrationsPath() string {
	return stringOr("MIGRATIONS_PATH", "migrations")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intOr("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return stringOr("LOG_LEVEL", "info")
}

// LogFile returns the path of the rotated JSON log file, if any.
func LogFile() string {
	return os.Getenv("LOG_FILE")
}

func OTelEnabled() bool {
	return os.Getenv("OTEL_ENABLED") == "true"
}

func OTelEndpoint() string {
	return stringOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
