package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
)

// collectionNameRe restricts collection names to safe SQL identifiers:
// the name becomes a table name and cannot be bound as a query parameter.
var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// validMetrics are the supported similarity metrics.
var validMetrics = map[string]bool{
	"dot-product": true,
	"cosine":      true,
	"euclidean":   true,
}

// Validate checks the configuration and fails fast with a sentinel error
// wrapped in context. Called from Load; callers branch with errors.Is.
func (c *Config) Validate() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("%w: dimension %d outside [1, 4096]", ErrInvalidDimension, c.EmbeddingDimension)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v outside [0.0, 2.0]", ErrInvalidTemperature, c.Temperature)
	}

	if !collectionNameRe.MatchString(c.Collection) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollection, c.Collection, collectionNameRe)
	}
	if !validMetrics[c.Metric] {
		return fmt.Errorf("%w: %q must be one of dot-product, cosine, euclidean", ErrInvalidMetric, c.Metric)
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: %d outside [1, 100]", ErrInvalidTopK, c.TopK)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk size)", ErrInvalidChunking, c.ChunkOverlap)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d outside [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}

// ValidateIngest performs the additional checks required before an
// ingestion run: at least one well-formed source URL.
func (c *Config) ValidateIngest() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	for _, src := range c.Sources {
		u, err := url.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: malformed source URL %q", ErrNoSources, src)
		}
	}
	return nil
}
