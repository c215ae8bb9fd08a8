package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coreagent/runtime/internal/loopctx"
	"github.com/coreagent/runtime/internal/model"
)

func buildReplayCmd() *cobra.Command {
	var historyPath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Restore a history file and print its transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			if historyPath == "" {
				return fmt.Errorf("--history is required")
			}
			store := loopctx.New(historyPath, nil)
			found, err := store.Restore()
			if err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintln(out, "no history found")
				return nil
			}
			fmt.Fprintf(out, "%d checkpoints, %d tokens\n\n", store.CheckpointCount(), store.TokenCount())
			for _, msg := range store.History() {
				fmt.Fprintln(out, formatMessage(msg))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&historyPath, "history", "", "History file path to replay")
	return cmd
}

func formatMessage(msg model.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", msg.Role)
	for _, part := range msg.Content {
		sb.WriteString(" ")
		sb.WriteString(part.String())
	}
	return sb.String()
}
