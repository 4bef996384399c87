package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirbrams/campuschat"
	"github.com/sirbrams/campuschat/internal/export"
)

var (
	exportFormat string
	exportPages  int
	exportOutput string
	exportSave   bool
)

var exportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Export a conversation transcript as JSON, YAML or Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(exportFormat)
		if err != nil {
			return err
		}
		client, _, err := getClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		convID := args[0]
		conv := campuschat.Conversation{ID: campuschat.ID(convID)}
		dir := campuschat.NewDirectory(client)
		if _, err := dir.Refresh(ctx); err == nil {
			if c, ok := dir.Lookup(convID); ok {
				conv = c
			}
		}

		store, err := collectHistory(ctx, client, convID, exportPages)
		if err != nil {
			return apiError(err)
		}
		msgs := store.List(convID)

		if exportOutput == "" && exportSave {
			exportOutput = transcriptFileName(convID, exporter)
		}
		var w io.Writer = cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("cannot create %s: %w", exportOutput, err)
			}
			defer f.Close()
			w = f
		}
		if err := exporter.Export(export.NewTranscript(conv, msgs), w); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if exportOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d messages to %s\n", len(msgs), exportOutput)
		}
		return nil
	},
}

// transcriptFileName is the default file a transcript of convID is saved to.
func transcriptFileName(convID string, exporter export.Exporter) string {
	return fmt.Sprintf("conversation-%s.%s", convID, exporter.Extension())
}

// collectHistory walks history pages backwards into a store, stopping at
// maxPages (0 means all) or the first page with nothing new.
func collectHistory(ctx context.Context, client *campuschat.Client, convID string, maxPages int) (*campuschat.MessageStore, error) {
	store := campuschat.NewMessageStore()
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		msgs, err := client.Messages.History(ctx, convID, page)
		if err != nil {
			var apiErr *campuschat.APIError
			// A 404 past page 1 is the end of history.
			if page > 1 && errors.As(err, &apiErr) && apiErr.Status == 404 {
				break
			}
			return nil, &campuschat.HistoryError{ConversationID: convID, Page: page, Err: err}
		}
		if store.Prepend(convID, msgs) == 0 {
			break
		}
		logger.Debug("export page loaded", "conversation", convID, "page", page, "messages", len(msgs))
	}
	return store, nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "Output format: json, yaml, md")
	exportCmd.Flags().IntVar(&exportPages, "pages", 0, "Maximum history pages to export (0 for all)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().BoolVar(&exportSave, "save", false, "Write to conversation-<id>.<format> when --output is not set")
	rootCmd.AddCommand(exportCmd)
}
