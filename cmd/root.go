// Package cmd contains the pitwall command-line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pitwall-ai/pitwall/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "pitwall",
	Short: "Pitwall - Formula One RAG chatbot",
	Long: `Pitwall is a retrieval-augmented Formula One chatbot.

It ingests F1 pages into a pgvector-backed knowledge base and answers
questions over HTTP, streaming model output augmented with the most
relevant stored chunks.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG enables debug-level output;
// PITWALL_LOG_JSON switches to JSON handlers for log collectors.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{
		Level: level,
		JSON:  os.Getenv("PITWALL_LOG_JSON") != "",
	})
}
