package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/creek/internal/config"
)

var errAborted = errors.New("aborted")

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default set",
	Long: `Write the default configuration to --config, or to
$XDG_CONFIG_HOME/creek/config.yaml when no path is given.

An existing file is only replaced after confirmation, or with --force.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file, environment and defaults)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file without asking")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		ok, err := confirm(fmt.Sprintf("%s exists, overwrite", path))
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

// confirm asks a yes/no question, defaulting to no. Without a terminal on
// stdin it refuses so scripts must pass --force.
func confirm(label string) (bool, error) {
	if !readline.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("%s: refusing without a terminal, use --force", label)
	}

	prompt := promptui.Prompt{
		Label:     label + " [y/N]",
		IsConfirm: true,
	}
	result, err := prompt.Run()
	switch {
	case errors.Is(err, promptui.ErrInterrupt):
		return false, errAborted
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case err != nil:
		return false, err
	}
	result = strings.ToLower(result)
	return result == "y" || result == "yes", nil
}
