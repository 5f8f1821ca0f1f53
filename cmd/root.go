// Package cmd implements the pairgate command line: the bot daemon itself
// plus the operator subcommands that talk to it over the ops endpoint.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pairgate/pairgate/internal/config"
)

// version is stamped at release time via -ldflags "-X .../cmd.version=...".
var version = "0.1.0"

var (
	flagConfig  string
	flagVerbose bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairgate",
		Short: "WhatsApp pairing bot for Telegram and Discord",
		Long: `pairgate links WhatsApp accounts over chat: users message the bot on
Telegram or Discord, receive a pairing code or QR, and the resulting
credentials are published to object storage.

Running pairgate with no subcommand starts the bot.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging()
		},
		Run: func(cmd *cobra.Command, args []string) {
			runDaemon()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(onboardCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(sessionsCmd())
	cmd.AddCommand(doctorCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pairgate %s\n", version)
		},
	}
}

// resolveConfigPath picks the config file: --config flag, then
// PAIRGATE_CONFIG, then the default under the pairgate directory.
func resolveConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if env := os.Getenv("PAIRGATE_CONFIG"); env != "" {
		return env
	}
	return config.DefaultPath()
}

func initLogging() {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
