package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirbrams/campuschat"
)

var (
	initName    string
	initBaseURL string
)

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "Display name used for your messages")
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "Campus service URL (default "+campuschat.DefaultBaseURL+")")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <user-id> <student|mentor>",
	Short: "Store your campus identity in ~/.campuschat/config.toml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, "auth.user_id", args[0]); err != nil {
			return err
		}
		if err := setConfigValue(cfg, "auth.role", args[1]); err != nil {
			return err
		}
		if initName != "" {
			cfg.Auth.UserName = initName
		}
		if initBaseURL != "" {
			cfg.Default.BaseURL = initBaseURL
		}
		if cfg.Default.Environment == "" {
			cfg.Default.Environment = "production"
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Fprintf(cmd.OutOrStdout(), "Identity saved to %s\n", path)
		return nil
	},
}
