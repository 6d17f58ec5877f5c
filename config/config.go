// Package config loads paperrag settings from the environment. A .env file
// in the working directory, when present, is read first; variables already
// set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
)

// Embedding providers.
const (
	EmbeddingOpenAI    = "openai"
	EmbeddingOllama    = "ollama"
	EmbeddingLangchain = "langchain"
	EmbeddingHash      = "hash"
)

// Metadata backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Web search providers.
const (
	WebTavily = "tavily"
	WebBrave  = "brave"
	WebNone   = "none"
)

type Config struct {
	VectorIndexPath string `env:"VECTOR_INDEX_PATH" envDefault:"data/vector_index"`
	IndexType       string `env:"INDEX_TYPE" envDefault:"flat"`

	EmbeddingProvider  string `env:"EMBEDDING_PROVIDER" envDefault:"hash"`
	EmbeddingModel     string `env:"EMBEDDING_MODEL"`
	EmbeddingBaseURL   string `env:"EMBEDDING_BASE_URL"`
	EmbeddingAPIKey    string `env:"EMBEDDING_API_KEY"`
	EmbeddingDimension int    `env:"EMBEDDING_DIMENSION" envDefault:"384"`

	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"200"`
	TopK         int `env:"TOP_K_RESULTS" envDefault:"4"`

	LLMModel    string  `env:"LLM_MODEL" envDefault:"llama-3.1-8b-instant"`
	LLMBaseURL  string  `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LLMAPIKey   string  `env:"GROQ_API_KEY"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0"`

	WebSearchProvider string `env:"WEB_SEARCH_PROVIDER" envDefault:"tavily"`
	TavilyAPIKey      string `env:"TAVILY_API_KEY"`
	BraveAPIKey       string `env:"BRAVE_API_KEY"`
	WebMaxResults     int    `env:"WEB_MAX_RESULTS" envDefault:"3"`

	MetadataBackend string `env:"METADATA_BACKEND" envDefault:"file"`
	MetadataFile    string `env:"METADATA_FILE" envDefault:"data/metadata/metadata.json"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"data/metadata/papers.db"`
	PostgresDSN     string `env:"POSTGRES_DSN"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`

	IngestConcurrency int    `env:"INGEST_CONCURRENCY" envDefault:"4"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file, parses the environment and validates
// the result.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: reading %s: %v", rag.ErrInvalidConfig, f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrInvalidConfig, err)
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerated values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, v ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, v...))
		}
	}

	check(c.ChunkSize > 0, "CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	check(c.ChunkOverlap >= 0 && c.ChunkOverlap < c.ChunkSize,
		"CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	check(c.TopK > 0, "TOP_K_RESULTS must be positive, got %d", c.TopK)
	check(c.Temperature >= 0 && c.Temperature <= 2, "TEMPERATURE must be in [0, 2], got %v", c.Temperature)
	check(c.IngestConcurrency > 0, "INGEST_CONCURRENCY must be positive, got %d", c.IngestConcurrency)
	check(c.WebMaxResults > 0, "WEB_MAX_RESULTS must be positive, got %d", c.WebMaxResults)
	check(oneOf(c.IndexType, "flat", "chromem"), "unknown INDEX_TYPE %q", c.IndexType)
	check(oneOf(c.EmbeddingProvider, EmbeddingOpenAI, EmbeddingOllama, EmbeddingLangchain, EmbeddingHash),
		"unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	check(c.EmbeddingProvider != EmbeddingHash || c.EmbeddingDimension > 0,
		"EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension)
	check(oneOf(c.WebSearchProvider, WebTavily, WebBrave, WebNone), "unknown WEB_SEARCH_PROVIDER %q", c.WebSearchProvider)
	check(oneOf(c.MetadataBackend, BackendFile, BackendMemory, BackendSQLite, BackendPostgres, BackendRedis),
		"unknown METADATA_BACKEND %q", c.MetadataBackend)
	check(c.MetadataBackend != BackendPostgres || c.PostgresDSN != "", "POSTGRES_DSN is required for the postgres backend")
	_, err := log.ParseLevel(c.LogLevel)
	check(err == nil, "unknown LOG_LEVEL %q", c.LogLevel)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", rag.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() log.LogLevel {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

func oneOf(v string, allowed ...string) bool {
	return slices.Contains(allowed, v)
}
