package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/creek/hostfunc"
	"github.com/caffeineduck/creek/internal/config"
	"github.com/caffeineduck/creek/internal/logger"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded before every command runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "creek",
	Short: "Method channel host for the bundled Python analysis scripts",
	Long: `creek - Serve the color, layout, download and stylesheet scripts over a
method channel.

One Python interpreter is started per process and shared by every call.
Methods are reachable over HTTP (serve), JSON lines on stdio (channel),
one-off from the shell (call) or interactively (repl).

Configuration is read from $XDG_CONFIG_HOME/creek/config.yaml (or --config)
and CREEK_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/creek/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level: DEBUG, INFO, WARN, ERROR")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Logging.Level = strings.ToUpper(logLevel)
		if err := config.Validate(loaded); err != nil {
			return err
		}
	}

	if err := logger.Init(logger.Config{
		Level:  loaded.Logging.Level,
		Format: loaded.Logging.Format,
		Output: loaded.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg = loaded
	return nil
}

// parseMount parses "virtual:host:mode" as accepted by --mount.
func parseMount(spec string) (config.MountConfig, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return config.MountConfig{}, fmt.Errorf("invalid mount spec %q (expected virtual:host:mode)", spec)
	}
	if _, err := hostfunc.ParseMountMode(parts[2]); err != nil {
		return config.MountConfig{}, err
	}
	return config.MountConfig{Virtual: parts[0], Host: parts[1], Mode: parts[2]}, nil
}
