// Package ingest drives the offline pipeline that turns source documents
// into stored embedding records: fetch, split, embed, insert.
//
// Sources are processed sequentially. A failing source or chunk is logged
// and skipped so one bad page cannot sink a long run; the one exception is
// an embedding dimension mismatch, which indicates misconfiguration and
// aborts the run before it can poison the collection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/pitwall-ai/pitwall/internal/embedding"
	"github.com/pitwall-ai/pitwall/internal/log"
	"github.com/pitwall-ai/pitwall/internal/splitter"
	"github.com/pitwall-ai/pitwall/internal/vectorstore"
)

// Fetcher downloads one source document as plain text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Inserter is the vector store surface the pipeline writes through.
type Inserter interface {
	CreateCollection(ctx context.Context, name string, dimension int, metric vectorstore.Metric) error
	Insert(ctx context.Context, collection string, rec vectorstore.Record) (string, error)
}

// Report summarizes one ingestion run.
type Report struct {
	SourcesProcessed int
	SourcesFailed    int
	ChunksInserted   int
	ChunksFailed     int
	Duration         time.Duration
}

// Options configures a Pipeline.
type Options struct {
	Sources    []string
	Collection string
	Dimension  int
	Metric     vectorstore.Metric

	ChunkSize    int
	ChunkOverlap int

	// EmbedRPS throttles embedding calls; zero or negative disables it.
	EmbedRPS float64
}

// Pipeline runs the offline ingestion flow.
type Pipeline struct {
	fetcher  Fetcher
	embedder Embedder
	store    Inserter
	splitter *splitter.Splitter
	limiter  *rate.Limiter
	opts     Options
	logger   log.Logger
}

// New creates a Pipeline.
func New(fetcher Fetcher, embedder Embedder, store Inserter, opts Options, logger log.Logger) (*Pipeline, error) {
	if fetcher == nil || embedder == nil || store == nil {
		return nil, errors.New("fetcher, embedder and store are required")
	}
	if len(opts.Sources) == 0 {
		return nil, errors.New("at least one source is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if opts.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.EmbedRPS), 1)
	}

	return &Pipeline{
		fetcher:  fetcher,
		embedder: embedder,
		store:    store,
		splitter: splitter.New(opts.ChunkSize, opts.ChunkOverlap),
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Run executes the pipeline and returns a run report. The returned error
// is non-nil only for fatal conditions: collection creation failure,
// embedding dimension mismatch, or context cancellation.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	if err := p.store.CreateCollection(ctx, p.opts.Collection, p.opts.Dimension, p.opts.Metric); err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", p.opts.Collection, err)
	}

	report := &Report{}
	for _, src := range p.opts.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.logger.Info("ingesting source", "url", src)
		if err := p.ingestSource(ctx, src, report); err != nil {
			if isFatal(err) {
				return nil, err
			}
			report.SourcesFailed++
			p.logger.Warn("source skipped", "url", src, "error", err)
			continue
		}
		report.SourcesProcessed++
	}

	report.Duration = time.Since(start)
	p.logger.Info("ingestion finished",
		"sources_processed", report.SourcesProcessed,
		"sources_failed", report.SourcesFailed,
		"chunks_inserted", report.ChunksInserted,
		"chunks_failed", report.ChunksFailed,
		"duration", report.Duration,
	)
	return report, nil
}

// ingestSource fetches one source and embeds and stores its chunks.
// Per-chunk failures increment the report and continue; fatal errors
// propagate to Run.
func (p *Pipeline) ingestSource(ctx context.Context, src string, report *Report) error {
	text, err := p.fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}

	for chunk := range p.splitter.Chunks(src, text) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.ingestChunk(ctx, chunk); err != nil {
			if isFatal(err) {
				return err
			}
			report.ChunksFailed++
			p.logger.Warn("chunk skipped", "url", src, "index", chunk.Index, "error", err)
			continue
		}
		report.ChunksInserted++
	}
	return nil
}

func (p *Pipeline) ingestChunk(ctx context.Context, chunk splitter.Chunk) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	vector, err := p.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embedding chunk: %w", err)
	}

	if _, err := p.store.Insert(ctx, p.opts.Collection, vectorstore.Record{
		Vector: vector,
		Text:   chunk.Text,
	}); err != nil {
		return fmt.Errorf("storing chunk: %w", err)
	}
	return nil
}

// isFatal reports whether err must abort the whole run rather than skip
// the current chunk or source.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, embedding.ErrDimensionMismatch) ||
		errors.Is(err, vectorstore.ErrDimensionMismatch)
}
