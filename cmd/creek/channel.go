package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/creek/channel"
	"github.com/caffeineduck/creek/internal/config"
	"github.com/caffeineduck/creek/internal/logger"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Serve the method channel as JSON lines on stdin/stdout",
	Long: `Read one request per line from stdin and write one reply per line to stdout.

Request:  {"id":"1","method":"analyzeLayout","args":{"imagePath":"/data/a.jpg"}}
Reply:    {"id":"1","ok":true,"payload":"..."}
Intent:   {"id":"2","intent":"com.creek.ui.ShareToFilesActivity"}

Requests run concurrently; replies are written in completion order.
Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runChannel,
}

func init() {
	channelCmd.Flags().StringSlice("allow-host", nil, "Allow HTTP from scripts to host (repeatable)")
	channelCmd.Flags().StringSlice("mount", nil, "Mount filesystem virtual:host:mode (repeatable)")
	rootCmd.AddCommand(channelCmd)
}

func runChannel(cmd *cobra.Command, args []string) error {
	if err := applyHostFlags(cmd); err != nil {
		return err
	}

	if lc, moved := channelLogging(cfg.Logging); moved {
		if err := logger.Init(logger.Config{Output: lc.Output}); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		cfg.Logging = lc
		logger.Warn("stdout carries channel replies, logging to stderr instead")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Serve returns at EOF on stdin; a signal ends the process as usual.
	ctx := cmd.Context()
	a.start(ctx)

	srv := channel.NewServer(a.dispatcher, channel.WithName(cfg.Server.Channel))
	return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// channelLogging moves stdout logging to stderr so log lines never land in
// the reply stream.
func channelLogging(lc config.LoggingConfig) (config.LoggingConfig, bool) {
	if !strings.EqualFold(lc.Output, "stdout") {
		return lc, false
	}
	lc.Output = "stderr"
	return lc, true
}
