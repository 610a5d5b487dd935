// Package cmd implements the uitest CLI commands.
//
// The root command dispatches to subcommands (run, list, version). Shared
// flags select the configuration file and override its verbosity.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-drift/testengine/pkg/config"
)

// Version information set at build time.
var (
	Version   = config.EngineVersion
	BuildTime = "unknown"
)

var (
	configPath string
	verbosity  string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uitest",
		Short: "Run immediate-mode UI tests",
		Long: `uitest drives an immediate-mode UI host frame by frame and runs
scripted tests against it: clicks, typing, menus, drag and drop.

Use "uitest <command> --help" for more information about a command.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "Configuration file (defaults apply when missing)")
	root.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "", "Live log level: silent, error, warning, info, debug")
	root.AddCommand(newRunCmd(), newListCmd(), newVersionCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the configuration file and applies the shared flags.
func loadConfig() (*config.Config, error) {
	// The runner drives an off-screen host, so it defaults to fast and
	// headless; the config file and then the flags refine that.
	base := config.Default()
	base.RunFast = true
	base.Headless = true
	cfg, err := config.LoadOptionalWith(configPath, base)
	if err != nil {
		return nil, err
	}
	if verbosity != "" {
		cfg.Verbosity = config.Verbosity(verbosity)
		if err := cfg.Resolve(); err != nil {
			return nil, fmt.Errorf("--verbosity: %w", err)
		}
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "uitest version %s (built %s)\n", Version, BuildTime)
		},
	}
}
