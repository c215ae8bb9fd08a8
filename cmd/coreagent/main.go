// Package main provides the CLI entry point for coreagent, a single-session
// interactive coding-agent runtime: one Loop Driver bound to a durable
// Context Store, a Tool Registry, an Approval Gate, and an Event Bus.
//
// # Basic Usage
//
// Start an interactive session in the current directory:
//
//	coreagent run
//
// Replay a prior session's history file:
//
//	coreagent replay --history .coreagent/history.jsonl
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key, used when --provider=anthropic
//   - OPENAI_API_KEY: OpenAI API key, used when --provider=openai
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "coreagent",
		Short:        "coreagent - single-session interactive coding-agent runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildReplayCmd())
	return rootCmd
}
