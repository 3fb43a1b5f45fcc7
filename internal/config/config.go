// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.pitwall/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, temperature, embedder model and dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: collection name, similarity metric, top-K
//   - Ingestion: source URLs, chunk size/overlap, embed throttle
//
// All required settings are validated in Load (fail-fast): a missing
// credential is a startup error, never a first-request error.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the Gemini API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidCollection indicates the collection name is invalid.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidMetric indicates the similarity metric is not supported.
	ErrInvalidMetric = errors.New("invalid similarity metric")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrNoSources indicates the ingestion source list is empty.
	ErrNoSources = errors.New("no ingestion sources configured")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality; the collection schema uses
	// DefaultEmbeddingDimension.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbeddingDimension is the vector dimensionality declared when
	// the collection is created. The embedder output must match exactly.
	DefaultEmbeddingDimension = 768

	// DefaultChunkSize is the splitter chunk size in bytes of UTF-8.
	DefaultChunkSize = 2000

	// DefaultChunkOverlap is the byte overlap between adjacent chunks.
	DefaultChunkOverlap = 200

	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 10

	// DefaultTemperature is the generation temperature.
	DefaultTemperature = 0.7
)

// defaultSources are the pages ingested when no source list is configured.
var defaultSources = []string{
	"https://en.wikipedia.org/wiki/Formula_One",
	"https://en.wikipedia.org/wiki/2023_Formula_One_World_Championship",
	"https://en.wikipedia.org/wiki/2024_Formula_One_World_Championship",
	"https://en.wikipedia.org/wiki/List_of_Formula_One_World_Drivers%27_Champions",
}

// Config stores application configuration.
type Config struct {
	// AI model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// EmbeddingDimension is a configuration constant, not discovered at
	// runtime: it must match the dimensionality of the collection.
	EmbeddingDimension int `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// MaxEmbedChars bounds the text length sent to the embedder.
	MaxEmbedChars int `mapstructure:"max_embed_chars" json:"max_embed_chars"`

	// Retrieval configuration
	Collection string `mapstructure:"collection" json:"collection"`
	Metric     string `mapstructure:"metric" json:"metric"`
	TopK       int    `mapstructure:"top_k" json:"top_k"`

	// Ingestion configuration
	Sources      []string `mapstructure:"sources" json:"sources"`
	ChunkSize    int      `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// EmbedRPS throttles embed+insert calls during ingestion (requests/s).
	EmbedRPS float64 `mapstructure:"embed_rps" json:"embed_rps"`

	// Scraper configuration
	ScrapeTimeoutMS int    `mapstructure:"scrape_timeout_ms" json:"scrape_timeout_ms"`
	ScrapeUserAgent string `mapstructure:"scrape_user_agent" json:"scrape_user_agent"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration
	Addr string `mapstructure:"addr" json:"addr"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".pitwall")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", DefaultTemperature)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	viper.SetDefault("max_embed_chars", 8192)

	// Retrieval defaults
	viper.SetDefault("collection", "f1gpt")
	viper.SetDefault("metric", "dot-product")
	viper.SetDefault("top_k", DefaultTopK)

	// Ingestion defaults
	viper.SetDefault("sources", defaultSources)
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("embed_rps", 5.0)

	// Scraper defaults
	viper.SetDefault("scrape_timeout_ms", 30000)
	viper.SetDefault("scrape_user_agent", "pitwall-ingest/1.0")

	// PostgreSQL defaults (local development)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "pitwall")
	viper.SetDefault("postgres_password", "pitwall_dev_password")
	viper.SetDefault("postgres_db_name", "pitwall")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("addr", "127.0.0.1:3400")
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". A ModelName already containing "/"
// is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return "googleai/" + c.ModelName
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence
// is checked in Validate.
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "PITWALL_MODEL_NAME")
	mustBind("embedder_model", "PITWALL_EMBEDDER_MODEL")
	mustBind("embedding_dimension", "PITWALL_EMBEDDING_DIMENSION")
	mustBind("collection", "PITWALL_COLLECTION")
	mustBind("metric", "PITWALL_METRIC")
	mustBind("sources", "PITWALL_SOURCES")
	mustBind("addr", "PITWALL_ADDR")
}
