// Package main implements portalctl, the operator CLI for the document portal.
package main

import (
	"os"

	"docportal/internal/config"

	"github.com/spf13/cobra"
)

var (
	configEnv string
	configDir string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operator CLI for the document portal",
	Long: `portalctl runs schema migrations, bootstraps users and issues
bearer tokens for local testing.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "env", "", "config environment (defaults to CONFIG_ENV or local)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory holding base.yaml and <env>.yaml")
}

func loadConfig() (*config.Config, error) {
	env := configEnv
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "local"
	}
	return config.LoadFrom(env, configDir)
}
