// Package cli implements the nwctl command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nodewatch-systems/nodewatch/internal/cli/config"
)

var (
	cfgFile   string
	serverURL string
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nwctl",
	Short: "NodeWatch CLI",
	Long: `nwctl is the command-line interface for the NodeWatch telemetry service.

Upload telemetry files, generate test datasets, and inspect the state of
a running nodewatch server from your terminal.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.nwctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (overrides profile)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// resolveServerURL applies the flag override on top of the active profile.
func resolveServerURL() (string, error) {
	if serverURL != "" {
		return serverURL, nil
	}
	profile, err := cfg.Active()
	if err != nil {
		return "", err
	}
	return profile.ServerURL, nil
}
