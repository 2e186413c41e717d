// Package cmd implements the CLI commands for soundsproxy.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"soundsproxy/internal/config"
	"soundsproxy/internal/observability"
	"soundsproxy/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "soundsproxy",
	Short:   "BBC Sounds podcast proxy",
	Version: version.Short(),
	Long: `soundsproxy turns BBC Sounds programmes into ordinary podcast feeds.

It serves an RSS feed per show and repackages the HLS streams of app-only
episodes into plain AAC audio any podcast client can play, with an optional
S3-compatible cache for finished episodes.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig reads the configuration and applies CLI flag overrides. Flags
// win over environment variables and the config file, but only when the user
// actually set them.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	applyLoggingFlags(cfg, rootCmd.PersistentFlags())

	return cfg, nil
}

// applyLoggingFlags overrides logging config with CLI flags, but only when
// the user actually set them. The flags are not bound to viper because the
// flag layer would always win, even at the flag's default value.
func applyLoggingFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
}

// setupLogging builds the process logger from config and installs it as the
// slog default.
func setupLogging(cfg *config.Config) {
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
}
