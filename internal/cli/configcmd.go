package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nodewatch-systems/nodewatch/internal/cli/config"
)

var configProfile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage nwctl profiles",
	Long:  "Inspect and edit the profiles stored in ~/.nwctl/config.yaml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configured profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			marker := " "
			if name == cfg.CurrentProfile {
				marker = "*"
			}
			fmt.Printf("%s %-12s %s\n", marker, name, cfg.Profiles[name].ServerURL)
		}
		return nil
	},
}

var configSetServerCmd = &cobra.Command{
	Use:   "set-server <url>",
	Short: "Set the server URL for a profile",
	Long:  "Set the server URL for a profile, creating the profile if it does not exist.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigSetServer(configProfile, args[0])
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Switch the active profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigUse(args[0])
	},
}

func init() {
	configSetServerCmd.Flags().StringVar(&configProfile, "profile", "", "profile to edit (default: the active one)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetServerCmd)
	configCmd.AddCommand(configUseCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSetServer(profile, url string) error {
	if profile == "" {
		profile = cfg.CurrentProfile
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*config.Profile)
	}
	p, ok := cfg.Profiles[profile]
	if !ok {
		p = &config.Profile{}
		cfg.Profiles[profile] = p
	}
	p.ServerURL = url

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Profile %q now targets %s\n", profile, url)
	return nil
}

func runConfigUse(profile string) error {
	if _, ok := cfg.Profiles[profile]; !ok {
		return fmt.Errorf("profile %q not found (create it with: nwctl config set-server --profile %s <url>)", profile, profile)
	}
	cfg.CurrentProfile = profile

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Switched to profile %q\n", profile)
	return nil
}
