package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/app-chooser/internal/config"
	"github.com/pandeptwidyaop/app-chooser/internal/version"
)

// Shared CLI flags
var (
	cfgFile   string
	serverURL string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "appchooser",
		Short: "Robot app chooser",
		Long: `appchooser connects to a robot's app manager, keeps the list of its apps
and exchange in sync, starts one app at a time and launches the matching local
client.

Run 'appchooser serve' for the daemon; the other commands talk to it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "daemon URL (default from config)")

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
		appsCmd(),
		exchangeCmd(),
		serviceCmd(),
	)
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// loadConfig reads --config, falling back to defaults plus environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil && cfgFile != "" && os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: config %s not found, using defaults\n", cfgFile)
		return config.Load("")
	}
	return cfg, err
}
