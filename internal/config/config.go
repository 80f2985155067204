package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Backend names for pluggable stores.
const (
	BackendSurrealDB = "surrealdb"
	BackendPGVector  = "pgvector"
	BackendSQLite    = "sqlite"
)

// ErrMissingIndexName is returned by Validate when no vector index namespace is configured.
var ErrMissingIndexName = errors.New("index_name is required")

// Config holds all configuration values.
type Config struct {
	// Package options
	IndexName            string `yaml:"index_name"`
	DefaultChatSessionID string `yaml:"default_chat_session_id"`
	TopK                 int    `yaml:"top_k"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Generation
	LLMProvider Provider `yaml:"llm_provider"`
	LLMModel    string   `yaml:"llm_model"`
	LLMCache    string   `yaml:"llm_cache"` // "disabled" or "enabled"

	// Embeddings
	EmbedProvider  Provider `yaml:"embed_provider"`
	EmbedModel     string   `yaml:"embed_model"`
	EmbedDimension int      `yaml:"embed_dimension"`

	// Provider credentials
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	OllamaHost      string `yaml:"ollama_host"`
	AWSRegion       string `yaml:"aws_region"`

	// Transcription
	WhisperModel   string `yaml:"whisper_model"`
	WhisperBaseURL string `yaml:"whisper_base_url"`
	MediaDir       string `yaml:"media_dir"`

	// Pluggable stores
	VectorBackend  string `yaml:"vector_backend"`
	PGVectorDSN    string `yaml:"pgvector_dsn"`
	HistoryBackend string `yaml:"history_backend"`
	SQLitePath     string `yaml:"sqlite_path"`

	// Job scheduling
	RedisURL     string        `yaml:"redis_url"`
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Server
	ServerPort string `yaml:"server_port"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DefaultChatSessionID: "default",
		TopK:                 2,

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "askmycourse",
		SurrealDBDatabase:  "lectures",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LLMProvider: ProviderOpenAI,
		LLMModel:    "gpt-4o-mini",
		LLMCache:    "disabled",

		EmbedProvider:  ProviderOpenAI,
		EmbedModel:     "text-embedding-ada-002",
		EmbedDimension: 1536,

		OllamaHost: "http://localhost:11434",
		AWSRegion:  "us-east-1",

		WhisperModel: "whisper-1",
		MediaDir:     "/tmp/askmycourse/media",

		VectorBackend:  BackendSurrealDB,
		HistoryBackend: BackendSurrealDB,
		SQLitePath:     "/tmp/askmycourse/history.db",

		Workers:      4,
		PollInterval: 2 * time.Second,

		ServerPort: "8585",

		LogFile:  "/tmp/askmycourse.log",
		LogLevel: slog.LevelInfo,
	}
}

// Load reads configuration from an optional YAML file (ASKMYCOURSE_CONFIG)
// and then from environment variables, which take precedence.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("ASKMYCOURSE_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// mergeFile overlays values from a YAML file onto cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var raw struct {
		Config   `yaml:",inline"`
		LogLevel string `yaml:"log_level"`
	}
	raw.Config = *c
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*c = raw.Config
	if raw.LogLevel != "" {
		c.LogLevel = parseLogLevel(raw.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.IndexName = getEnv("ASKMYCOURSE_INDEX_NAME", c.IndexName)
	c.DefaultChatSessionID = getEnv("ASKMYCOURSE_DEFAULT_CHAT_SESSION_ID", c.DefaultChatSessionID)
	c.TopK = getEnvInt("ASKMYCOURSE_TOP_K", c.TopK)

	c.SurrealDBURL = getEnv("SURREALDB_URL", c.SurrealDBURL)
	c.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", c.SurrealDBNamespace)
	c.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", c.SurrealDBDatabase)
	c.SurrealDBUser = getEnv("SURREALDB_USER", c.SurrealDBUser)
	c.SurrealDBPass = getEnv("SURREALDB_PASS", c.SurrealDBPass)
	c.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", c.SurrealDBAuthLevel)

	c.LLMProvider = Provider(getEnv("ASKMYCOURSE_LLM_PROVIDER", string(c.LLMProvider)))
	c.LLMModel = getEnv("ASKMYCOURSE_LLM_MODEL", c.LLMModel)
	c.LLMCache = getEnv("ASKMYCOURSE_LLM_CACHE", c.LLMCache)

	c.EmbedProvider = Provider(getEnv("ASKMYCOURSE_EMBED_PROVIDER", string(c.EmbedProvider)))
	c.EmbedModel = getEnv("ASKMYCOURSE_EMBED_MODEL", c.EmbedModel)
	c.EmbedDimension = getEnvInt("ASKMYCOURSE_EMBED_DIMENSION", c.EmbedDimension)

	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OllamaHost = getEnv("OLLAMA_HOST", c.OllamaHost)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	c.WhisperModel = getEnv("ASKMYCOURSE_WHISPER_MODEL", c.WhisperModel)
	c.WhisperBaseURL = getEnv("ASKMYCOURSE_WHISPER_BASE_URL", c.WhisperBaseURL)
	c.MediaDir = getEnv("ASKMYCOURSE_MEDIA_DIR", c.MediaDir)

	c.VectorBackend = getEnv("ASKMYCOURSE_VECTOR_BACKEND", c.VectorBackend)
	c.PGVectorDSN = getEnv("PGVECTOR_DSN", c.PGVectorDSN)
	c.HistoryBackend = getEnv("ASKMYCOURSE_HISTORY_BACKEND", c.HistoryBackend)
	c.SQLitePath = getEnv("ASKMYCOURSE_SQLITE_PATH", c.SQLitePath)

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.Workers = getEnvInt("ASKMYCOURSE_WORKERS", c.Workers)
	c.PollInterval = getEnvDuration("ASKMYCOURSE_POLL_INTERVAL", c.PollInterval)

	c.ServerPort = getEnv("ASKMYCOURSE_SERVER_PORT", c.ServerPort)

	c.LogFile = getEnv("ASKMYCOURSE_LOG_FILE", c.LogFile)
	if lvl := os.Getenv("ASKMYCOURSE_LOG_LEVEL"); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}
}

// Validate checks options the server cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.IndexName) == "" {
		return ErrMissingIndexName
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	switch c.VectorBackend {
	case BackendSurrealDB:
	case BackendPGVector:
		if c.PGVectorDSN == "" {
			return fmt.Errorf("pgvector backend requires PGVECTOR_DSN")
		}
	default:
		return fmt.Errorf("unsupported vector backend: %s", c.VectorBackend)
	}
	switch c.HistoryBackend {
	case BackendSurrealDB, BackendSQLite:
	default:
		return fmt.Errorf("unsupported history backend: %s", c.HistoryBackend)
	}
	return nil
}

// CacheEnabled reports whether generation responses may be cached.
func (c Config) CacheEnabled() bool {
	return strings.EqualFold(c.LLMCache, "enabled")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("ignoring invalid integer env var", "key", key, "value", val)
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("ignoring invalid duration env var", "key", key, "value", val)
		return defaultVal
	}
	return d
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
