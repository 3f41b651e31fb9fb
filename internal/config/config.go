// Package config loads process configuration from the environment. There is
// no struct-tag binding library: each field is assigned explicitly from
// os.Getenv, matching the style the rest of this codebase uses everywhere
// configuration is read.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full set of environment-derived process configuration.
type Config struct {
	DatabaseURL string

	GlobalLLMKey string
	GlobalLLMURL string

	ChatModel  string
	ChatAPIKey string
	ChatAPIURL string

	UtilityModel  string
	UtilityAPIKey string
	UtilityAPIURL string

	SummaryHistoryThreshold int

	RAGEmbeddingModel string
	RAGVectorDBPath   string
	RAGAPIKey         string
	RAGAPIURL         string

	MaxModelContextLength int
	ModelManifestPath     string

	LogLevel string
	LogFile  string
	HTTPAddr string

	OTLPEndpoint string
}

// Load reads configuration from environment variables, applying a local
// .env file first (if present) via godotenv.Overload so repository-local
// development configuration deterministically wins over a stale shell
// environment.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		GlobalLLMKey: strings.TrimSpace(os.Getenv("GLOBAL_LLM_KEY")),
		GlobalLLMURL: strings.TrimSpace(os.Getenv("GLOBAL_LLM_URL")),

		ChatModel:  strings.TrimSpace(os.Getenv("CHAT_MODEL")),
		ChatAPIKey: strings.TrimSpace(os.Getenv("CHAT_API_KEY")),
		ChatAPIURL: strings.TrimSpace(os.Getenv("CHAT_API_URL")),

		UtilityModel:  strings.TrimSpace(os.Getenv("UTILITY_MODEL")),
		UtilityAPIKey: strings.TrimSpace(os.Getenv("UTILITY_API_KEY")),
		UtilityAPIURL: strings.TrimSpace(os.Getenv("UTILITY_API_URL")),

		RAGEmbeddingModel: strings.TrimSpace(os.Getenv("RAG_EMBEDDING_MODEL")),
		RAGVectorDBPath:   strings.TrimSpace(os.Getenv("RAG_VECTOR_DB_PATH")),
		RAGAPIKey:         strings.TrimSpace(os.Getenv("RAG_API_KEY")),
		RAGAPIURL:         strings.TrimSpace(os.Getenv("RAG_API_URL")),

		ModelManifestPath: strings.TrimSpace(os.Getenv("MODEL_MANIFEST_PATH")),

		LogLevel: strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		LogFile:  strings.TrimSpace(os.Getenv("LOG_FILE")),
		HTTPAddr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),

		OTLPEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}

	// Fall back to the global LLM credentials for chat/utility when the
	// per-role variables are not set, matching how an operator is expected
	// to configure a single upstream by default and override per-role only
	// when they want split routing.
	if cfg.ChatAPIKey == "" {
		cfg.ChatAPIKey = cfg.GlobalLLMKey
	}
	if cfg.ChatAPIURL == "" {
		cfg.ChatAPIURL = cfg.GlobalLLMURL
	}
	if cfg.UtilityAPIKey == "" {
		cfg.UtilityAPIKey = cfg.GlobalLLMKey
	}
	if cfg.UtilityAPIURL == "" {
		cfg.UtilityAPIURL = cfg.GlobalLLMURL
	}

	if v := strings.TrimSpace(os.Getenv("SUMMARY_HISTORY_THRESHOLD")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SummaryHistoryThreshold = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_MODEL_CONTEXT_LENGTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxModelContextLength = n
		}
	}

	if cfg.MaxModelContextLength <= 0 {
		cfg.MaxModelContextLength = 8192
	}
	if cfg.ModelManifestPath == "" {
		cfg.ModelManifestPath = "models.json"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8089"
	}

	return cfg, nil
}
