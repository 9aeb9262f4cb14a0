// Package cli implements the generals command-line interface using Cobra.
// `run` is the launcher the user talks to; `peer` is the hidden command
// every spawned general runs.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quorum-sim/generals/internal/daemon"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.generals/config.toml)")
}

var rootCmd = &cobra.Command{
	Use:   "generals",
	Short: "Byzantine generals quorum simulator",
	Long: `generals starts a quorum of generals as local processes and lets you
propose orders, mark generals faulty, and add or kill generals while
watching the quorum reach (or miss) agreement.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config (or the default file) and applies the
// cluster overrides given on the command line.
func loadConfig(host string, basePort int) (daemon.Config, error) {
	var (
		cfg daemon.Config
		err error
	)
	if configPath != "" {
		cfg, err = daemon.LoadConfigFile(configPath)
	} else {
		cfg, err = daemon.LoadConfig()
	}
	if err != nil {
		return cfg, err
	}

	if host != "" {
		cfg.Cluster.Host = host
	}
	if basePort > 0 {
		cfg.Cluster.BasePort = basePort
	}
	return cfg, cfg.Validate()
}
