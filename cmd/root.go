// Package cmd implements the telebox command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/coopco/telebox/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "telebox",
	Short:         "Telegram userbot with scheduled tasks, forwarding and moderation plugins",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (default ~/.telebox/config.json)")
	rootCmd.AddCommand(runCmd, tasksCmd, catalogCmd, configCmd)
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the config file. Offline commands pass required=false
// and get the defaults when no file exists yet.
func loadConfig(required bool) (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) && !required {
		return config.LoadFromReader(strings.NewReader("{}"))
	}
	return config.LoadFromFile(path)
}

// setupLogging installs the default slog handler described by cfg.
func setupLogging(cfg config.LogConfig) error {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch cfg.Format {
	case "", "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", cfg.Format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
