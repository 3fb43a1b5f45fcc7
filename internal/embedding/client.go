// Package embedding maps text to fixed-length vectors via a Genkit
// ai.Embedder.
//
// The output dimension is a configuration constant that must match the
// collection the vectors are stored in; the client verifies every response
// and never truncates or pads.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/pitwall-ai/pitwall/internal/log"
)

var (
	// ErrService indicates the embedding service was unreachable or
	// returned a malformed response.
	ErrService = errors.New("embedding service error")

	// ErrInputTooLarge indicates the text exceeds the model's input limit.
	ErrInputTooLarge = errors.New("embedding input too large")

	// ErrDimensionMismatch indicates the returned vector length does not
	// match the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Client wraps an ai.Embedder with dimension and input-size enforcement.
//
// Client is safe for concurrent use.
type Client struct {
	embedder  ai.Embedder
	dimension int
	maxChars  int
	logger    log.Logger
}

// New creates a Client. dimension is the expected vector length; maxChars
// bounds the input text (0 disables the check).
func New(embedder ai.Embedder, dimension, maxChars int, logger log.Logger) (*Client, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{embedder: embedder, dimension: dimension, maxChars: maxChars, logger: logger}, nil
}

// Dimension returns the configured vector length.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns the embedding vector for text.
//
// The model is asked to emit exactly the configured dimensionality
// (Gemini embedders support Matryoshka truncation); the response length is
// still verified, since a silent mismatch would poison the collection.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.maxChars > 0 && len(text) > c.maxChars {
		return nil, fmt.Errorf("%w: %d chars exceeds limit %d", ErrInputTooLarge, len(text), c.maxChars)
	}

	dim := int32(c.dimension) // #nosec G115 -- validated range in New
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrService, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrService)
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d",
			ErrDimensionMismatch, c.dimension, len(vec))
	}

	c.logger.Debug("text embedded", "chars", len(text), "dimension", len(vec))
	return vec, nil
}
