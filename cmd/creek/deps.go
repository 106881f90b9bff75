package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/creek/internal/wheel"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Manage pure-Python packages available to the scripts",
	Long: `Install pure-Python wheels (py3-none-any) into runtime.packages_dir,
which the interpreter puts on its search path after the scripts directory.
Packages with native extensions cannot be installed this way.`,
}

var depsInstallCmd = &cobra.Command{
	Use:   "install <package>[==version]...",
	Short: "Install packages from the package index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst := newInstaller()
		for _, spec := range args {
			pkg, err := inst.Install(cmd.Context(), spec)
			if err != nil {
				return fmt.Errorf("install %s: %w", spec, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s\n", pkg.Name, pkg.Version)
		}
		return nil
	},
}

var depsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkgs, err := newInstaller().List()
		if err != nil {
			return err
		}
		if len(pkgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No packages installed")
			return nil
		}
		for _, p := range pkgs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.Name, p.Version)
		}
		return nil
	},
}

var depsRemoveCmd = &cobra.Command{
	Use:   "remove <package>...",
	Short: "Remove installed packages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inst := newInstaller()
		for _, name := range args {
			if err := inst.Remove(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", name)
		}
		return nil
	},
}

func init() {
	depsCmd.AddCommand(depsInstallCmd, depsListCmd, depsRemoveCmd)
	rootCmd.AddCommand(depsCmd)
}

func newInstaller() *wheel.Installer {
	return wheel.NewInstaller(cfg.Runtime.PackagesDir, wheel.WithIndex(cfg.Runtime.PackageIndex))
}
