package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitwall-ai/pitwall/internal/app"
	"github.com/pitwall-ai/pitwall/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, chunk, embed, and store the configured sources",
	Long: `Ingest runs the offline pipeline: each configured source page is
downloaded, reduced to readable text, split into overlapping chunks,
embedded, and appended to the vector collection.

Sources that fail are skipped and reported; re-running ingest appends
new records rather than replacing existing ones.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIngest(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateIngest(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	pipeline, err := a.IngestPipeline()
	if err != nil {
		return fmt.Errorf("building ingestion pipeline: %w", err)
	}

	report, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("Ingestion complete in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Printf("  Sources processed: %d\n", report.SourcesProcessed)
	fmt.Printf("  Sources failed:    %d\n", report.SourcesFailed)
	fmt.Printf("  Chunks inserted:   %d\n", report.ChunksInserted)
	fmt.Printf("  Chunks failed:     %d\n", report.ChunksFailed)
	return nil
}
