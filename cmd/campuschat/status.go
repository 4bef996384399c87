package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirbrams/campuschat"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEffectiveConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		fmt.Fprintf(out, "  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, campuschat.DefaultBaseURL))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Identity:")
		if cfg.Auth.UserID == "" {
			fmt.Fprintln(out, "  User:        (not configured)")
			return nil
		}
		fmt.Fprintf(out, "  User ID:     %s\n", cfg.Auth.UserID)
		fmt.Fprintf(out, "  Name:        %s\n", valueOrDefault(cfg.Auth.UserName, "(not set)"))
		fmt.Fprintf(out, "  Role:        %s\n", valueOrDefault(cfg.Auth.Role, "(not set)"))

		client, _, err := getClient()
		if err != nil {
			fmt.Fprintf(out, "  Error:       %v\n", err)
			return nil
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Live status:")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		convs, err := client.Conversations.List(ctx)
		if err != nil {
			fmt.Fprintf(out, "  Error fetching conversations: %v\n", err)
			return nil
		}
		fmt.Fprintf(out, "  Conversations: %d\n", len(convs))
		fmt.Fprintf(out, "  Unread:        %d\n", campuschat.UnreadTotal(convs))
		return nil
	},
}
