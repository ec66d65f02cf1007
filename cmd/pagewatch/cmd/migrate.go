package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/pagewatch/internal/configstore"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Config Store schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := newLogger(cfg)
		if err := configstore.RunMigrations(cfg, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		fmt.Fprintln(os.Stdout, "migrations applied")
		return nil
	},
}
