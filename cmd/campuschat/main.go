package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirbrams/campuschat/internal/obs"
)

var (
	verbose bool
	logger  = slog.Default()
)

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:   "campuschat",
	Short: "TechCampus chat CLI",
	Long: "Command-line client for the TechCampus mentor/student chat.\n" +
		"List conversations, read history, send messages, chat live and ask the campus assistant.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEffectiveConfig()
		if err != nil {
			return err
		}
		logger = obs.NewLogger(obs.Options{
			Env:     cfg.Default.Environment,
			Format:  cfg.Default.LogFormat,
			Verbose: verbose,
		})
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
