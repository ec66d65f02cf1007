package cmd

import (
	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pagewatch/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pagewatch",
	Short: "Page-watch engine: polls pages for content change and dispatches webhooks",
	Long: "pagewatch watches a set of pages for content change, detecting changes by " +
		"selector-scoped extraction and hashing, and posts a JSON event to a webhook " +
		"whenever one is detected.",
}

// Execute runs the root command, dispatching to whichever subcommand the
// caller invoked.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (env vars override)")
}

// loadConfig loads the config file named by --config, falling back to
// environment variables only when no path was given.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.LoadConfigFromEnv()
	}
	return config.LoadConfig(configPath)
}
